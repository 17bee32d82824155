package main

import (
	flag "github.com/spf13/pflag"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

type convertFlags struct {
	output  string
	title   string
	options string
	format  string
}

type processFlags struct {
	concurrency int
}

func bindGlobalFlags(fs *flag.FlagSet, f *globalFlags) {
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file (default: built-in settings)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func bindConvertFlags(fs *flag.FlagSet, f *convertFlags) {
	fs.StringVarP(&f.output, "output", "o", "", "Output PDF file (default: <input>.pdf)")
	fs.StringVarP(&f.title, "title", "t", "", "Document title")
	fs.StringVar(&f.options, "options", "", "Decoration options: OR of 1 (title), 2 (first page header), 4 (header on other pages), 8 (bottom rule)")
	fs.StringVarP(&f.format, "format", "f", "", "Markup format: html or markdown (default: from the input extension)")
}

func bindProcessFlags(fs *flag.FlagSet, f *processFlags) {
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "Items processed at once (default: spool.concurrency)")
}
