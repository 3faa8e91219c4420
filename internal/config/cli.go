// Package config holds the kong command line of the vxhci binary.
package config

import "github.com/Alia5/vxhci/internal/cmd"

// CLI is the root command. Values come from flags, then VXHCI_* variables,
// then the first configuration file found.
type CLI struct {
	ConfigFile string `name:"config" help:"Configuration file (json, yaml or toml)" env:"VXHCI_CONFIG"`
	Log        Log    `embed:"" prefix:"log."`

	Walk   cmd.Walk          `cmd:"" help:"Lay out a scenario in guest memory, replay it and dump the event ring"`
	Config cmd.ConfigCommand `cmd:"" help:"Configuration file helpers"`
}

// Log holds the logging flags shared by every command.
type Log struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"VXHCI_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"VXHCI_LOG_FILE"`
	RawFile string `help:"Write every guest memory access as hex to this file" env:"VXHCI_LOG_RAW_FILE"`
	Format  string `help:"Log record format" enum:"text,json" default:"text" env:"VXHCI_LOG_FORMAT"`
}
