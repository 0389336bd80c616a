package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/term"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sps30"
)

// interactiveCmd represents the interactive command
var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Short:   "Send single commands to sensor from keyboard",
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := openConn(logrusForPort())
		if err != nil {
			return err
		}
		if errOpen := conn.Open(); errOpen != nil {
			return errOpen
		}
		defer conn.Close()
		return interactiveMode(sps30.NewDevice(conn, sps30.WithResponseTimeout(viper.GetDuration("response-timeout"))))
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
	addConnectionFlags(interactiveCmd)
}

func getch() []byte {
	t, errOpen := term.Open("/dev/tty")
	if errOpen != nil {
		return nil
	}
	term.RawMode(t)
	bytes := make([]byte, 3)
	numRead, err := t.Read(bytes)
	t.Restore()
	t.Close()
	if err != nil {
		return nil
	}
	return bytes[0:numRead]
}

func printInteractiveHelp() {
	fmt.Printf("---- Interactive commands ----\n")
	fmt.Printf("s = start measurement\n")
	fmt.Printf("t = stop measurement\n")
	fmt.Printf("r = read measurement\n")
	fmt.Printf("z = sleep\n")
	fmt.Printf("w = wake up\n")
	fmt.Printf("c = start fan cleaning\n")
	fmt.Printf("a = set auto clean interval to 1 day\n")
	fmt.Printf("i = device info\n")
	fmt.Printf("x = read and clear status register\n")
	fmt.Printf("q = reset sensor\n")
	fmt.Printf("h = print this help\n")
	fmt.Printf("ctrl+c = exit\n")
}

func reportResult(what string, err error) {
	if err != nil {
		color.Set(color.FgRed)
		fmt.Printf("%v failed: %v\n", what, err)
		color.Unset()
		return
	}
	color.Set(color.FgGreen)
	fmt.Printf("%v OK\n", what)
	color.Unset()
}

// This have colors :)
func interactiveMode(dev *sps30.Device) error {
	printInteractiveHelp()
	var serial sps30.SerialNumber

	for {
		arr := getch()
		if len(arr) == 0 {
			return fmt.Errorf("no terminal for keyboard input")
		}
		switch string(arr[0]) {
		case "\x03":
			return nil
		case "s":
			reportResult("start measurement", dev.StartMeasurement())
		case "t":
			reportResult("stop measurement", dev.StopMeasurement())
		case "r":
			m, state, err := dev.ReadMeasurement()
			if err != nil {
				reportResult("read measurement", err)
				continue
			}
			if state.Degraded() {
				color.Set(color.FgHiRed)
				fmt.Printf("device error state 0x%02X\n", state.Code())
				color.Unset()
			}
			color.Set(color.FgHiYellow)
			fmt.Fprintln(os.Stdout, sps30.FormatReading(serial, m))
			color.Unset()
		case "z":
			reportResult("sleep", dev.Sleep())
		case "w":
			reportResult("wake up", dev.WakeUp())
		case "c":
			reportResult("fan cleaning", dev.StartFanCleaning())
		case "a":
			reportResult("auto clean interval", dev.SetAutoCleanInterval(1))
		case "i":
			printDeviceInfo(dev)
			if s, err := dev.ReadSerial(); err == nil {
				serial = s
			}
		case "x":
			reg, err := dev.ReadStatusRegister(true)
			printValue("Status register", reg, err)
		case "q":
			reportResult("reset", dev.Reset())
		case "h":
			printInteractiveHelp()
		default:
			fmt.Printf("unknown command %q, h for help\n", arr[0])
		}
	}
}
