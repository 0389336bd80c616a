package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sps30"
	"sps30/lifecycle"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print sensor identity and status",
	Long: `Open serial port, probe sensor once and print firmware version,
serial number, product type, auto clean interval and status register.

Uses same --port, --baud, --sim and --sim-model settings as run.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrusForPort()
		conn, err := openConn(log)
		if err != nil {
			return err
		}
		if errOpen := conn.Open(); errOpen != nil {
			return errOpen
		}
		defer conn.Close()

		dev := sps30.NewDevice(conn, sps30.WithResponseTimeout(viper.GetDuration("response-timeout")))
		if errProbe := dev.Probe(); errProbe != nil {
			return fmt.Errorf("%w: %w", lifecycle.ErrProbeFailed, errProbe)
		}
		printDeviceInfo(dev)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	addConnectionFlags(infoCmd)
}

func printValue(name string, value interface{}, err error) {
	if err != nil {
		color.Set(color.FgRed)
		fmt.Printf("%-20s error %v\n", name, err)
		color.Unset()
		return
	}
	fmt.Printf("%-20s %v\n", name, value)
}

func printDeviceInfo(dev *sps30.Device) {
	ver, errVer := dev.ReadVersion()
	printValue("Version", ver, errVer)
	serial, errSerial := dev.ReadSerial()
	printValue("Serial number", serial.Display(), errSerial)
	productType, errProduct := dev.ReadProductType()
	printValue("Product type", productType, errProduct)
	interval, errInterval := dev.ReadAutoCleanInterval()
	printValue("Auto clean interval", interval, errInterval)
	reg, errReg := dev.ReadStatusRegister(false)
	if errReg == nil && reg != 0 {
		color.Set(color.FgHiYellow)
		defer color.Unset()
	}
	printValue("Status register", reg, errReg)
}
