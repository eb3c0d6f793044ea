// Command clipgif captures a time range of a video file as an animated GIF.
//
// Subcommands:
//
//	capture   sample one clip and write the GIF
//	batch     capture every clip listed in a YAML manifest
//	history   list, show and prune recorded runs
//	doctor    check binaries, directories and host resources
//	config    create, validate or print the configuration file
package main
