/*
SPS30 simulator

Answers SHDLC frames on serial port like single SPS30 would. Model and
fault injection can be changed while running through HTTP UI
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/hjkoskel/listserialports"
	"github.com/pkg/term"
	"github.com/pkg/term/termios"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sps30"
	"sps30/sim"
)

var rootCmd = &cobra.Command{
	Use:   "sps30sim",
	Short: "Simulated SPS30 sensor on serial port",
	Long: `Simulated SPS30 sensor on serial port.

Either give serial device (null modem or USB adapter looped to the host
under test) or use --pty and point sps30ctl to the printed device.

Examples:
  sps30sim --pty --model model.yaml
  sps30sim --serial /dev/ttyUSB1 --ui-addr :8088`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSim,
}

func init() {
	f := rootCmd.Flags()
	f.StringP("serial", "s", "", "serial device file")
	f.Bool("pty", false, "create pseudoterminal instead of opening serial device")
	f.IntP("baud", "b", sps30.DEFAULTBAUDRATE, "baud rate")
	f.StringP("model", "m", "", "sensor model YAML file, created if missing, saved on updates")
	f.String("ui-addr", ":8088", "address for model and status UI")
	f.String("crt", "", "crt file for https UI")
	f.String("key", "", "key file for https UI")
	f.BoolP("quiet", "q", false, "do not print frames")
	viper.BindPFlags(f)

	viper.SetEnvPrefix("SPS30SIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// ptyPort keeps slave end open so master does not get EIO when client closes its end
type ptyPort struct {
	*os.File
	pts *os.File
}

func (p ptyPort) Close() error {
	p.pts.Close()
	return p.File.Close()
}

// openPort returns port and name of the device where client should connect
func openPort(device string, pty bool, baud int) (io.ReadWriteCloser, string, error) {
	if pty {
		ptm, pts, err := termios.Pty()
		if err != nil {
			return nil, "", fmt.Errorf("creating pty: %w", err)
		}
		return ptyPort{File: ptm, pts: pts}, pts.Name(), nil
	}
	t, err := term.Open(device, term.Speed(baud), term.RawMode)
	if err != nil {
		return nil, "", fmt.Errorf("serial device %v open error %w", device, err)
	}
	return t, device, nil
}

func loadOrCreateModel(fname string) (sim.Model, error) {
	if fname == "" {
		return sim.DefaultModel(), nil
	}
	model, err := sim.LoadModel(fname)
	if err == nil {
		return model, nil
	}
	if _, errStat := os.Stat(fname); !errors.Is(errStat, os.ErrNotExist) {
		return model, err
	}
	model = sim.DefaultModel()
	return model, sim.SaveModel(fname, model)
}

func printFrame(request sps30.Frame, reply *sps30.Frame) {
	color.Set(color.FgGreen)
	fmt.Printf("Recieved request %v\n", request.String())
	color.Unset()
	if reply == nil {
		color.Set(color.FgYellow)
		fmt.Printf("not answering\n")
		color.Unset()
		return
	}
	color.Set(color.FgCyan)
	fmt.Printf("to serial: %v\n", reply.String())
	color.Unset()
}

func runSim(cmd *cobra.Command, args []string) error {
	device := viper.GetString("serial")
	pty := viper.GetBool("pty")
	if device == "" && !pty {
		fmt.Printf("Please define serial device or --pty. (-h for help)\nList of serial ports\n")
		probed, errProbing := listserialports.Probe(false)
		if errProbing != nil {
			return fmt.Errorf("error probing serial ports %w", errProbing)
		}
		for _, ser := range probed {
			fmt.Print(ser.ToPrintoutFormat())
		}
		return nil
	}

	modelFile := viper.GetString("model")
	model, errModel := loadOrCreateModel(modelFile)
	if errModel != nil {
		return errModel
	}
	sensor := sim.NewSensor(model)

	port, portName, errPort := openPort(device, pty, viper.GetInt("baud"))
	if errPort != nil {
		return errPort
	}
	defer port.Close()
	color.HiGreen("Simulated SPS30 serial %v on %v", model.Serial, portName)

	link := sim.NewLink(port, sensor)
	if !viper.GetBool("quiet") {
		link.OnFrame = printFrame
	}
	link.OnInvalidFrame = func(err error) {
		color.Red("invalid frame: %v", err)
	}

	errs := make(chan error, 2)
	go func() {
		errRun := link.Run()
		if errRun == nil {
			errRun = fmt.Errorf("serial link closed")
		}
		errs <- errRun
	}()
	go func() {
		errs <- runUIServer(viper.GetString("ui-addr"), viper.GetString("crt"), viper.GetString("key"), newUIRouter(sensor, modelFile))
	}()
	return <-errs
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("sps30sim failed: %v", err)
		os.Exit(1)
	}
}
