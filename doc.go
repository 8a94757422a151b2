// Package armctl provides an operator console for desktop robot arms that
// speak a line-based ASCII protocol over a serial port.
//
// Operators jog the arm, send point and line moves, switch the suction cup
// and run ramped moves whose speed climbs step by step. Every outcome shows
// up as one entry in the console's event log.
//
// # Installation
//
//	go install github.com/gwillem/armctl/cmd/armctl@latest
//
// # Usage
//
// First, pick the serial port and default speed:
//
//	armctl setup
//
// Then start the interactive console:
//
//	armctl console
//
// Or send a few commands and exit:
//
//	armctl send "speed 50; world 10 0 0"
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/armctl: CLI with setup, ports, send and console commands
//   - pkg/protocol: Command line encoding and operator input parsing
//   - pkg/link: Serial connection state and transport
//   - pkg/motion: Jog and ramp session manager
//   - pkg/console: Operator facade and event log
//   - pkg/config: Settings file and environment overrides
//   - pkg/monitor: Websocket mirror of the event log
package armctl
