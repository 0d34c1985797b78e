package mqtt

import "fmt"

// TopicPrefix is the root of every topic published or consumed here.
const TopicPrefix = "acsauto"

// Topics builds the topics of one station.
//
//	topics := mqtt.Topics{Station: "bench-01"}
//	topics.RunCommand() // "acsauto/bench-01/command/run"
type Topics struct {
	Station string
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Station)
}

// Status is the retained online/offline topic, also used for the LWT.
//
// Example: acsauto/bench-01/status
func (t Topics) Status() string {
	return t.base() + "/status"
}

// RunCommand receives {"category": "..."} requests to start a macro.
//
// Example: acsauto/bench-01/command/run
func (t Topics) RunCommand() string {
	return t.base() + "/command/run"
}

// StopCommand receives {"stop": true|false}; an empty payload toggles.
//
// Example: acsauto/bench-01/command/stop
func (t Topics) StopCommand() string {
	return t.base() + "/command/stop"
}

// AllCommands matches every command topic of the station.
//
// Pattern: acsauto/bench-01/command/+
func (t Topics) AllCommands() string {
	return t.base() + "/command/+"
}

// RunEvent is where run lifecycle events are published.
//
// Example: acsauto/bench-01/run/finished
func (t Topics) RunEvent(event string) string {
	return fmt.Sprintf("%s/run/%s", t.base(), event)
}

// CommandResult carries the outcome of a command.
//
// Example: acsauto/bench-01/command/run/result
func (t Topics) CommandResult(command string) string {
	return fmt.Sprintf("%s/command/%s/result", t.base(), command)
}
