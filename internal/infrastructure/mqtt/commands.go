package mqtt

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/nerrad567/acs-auto/internal/macro"
)

// Transport is the part of *Client the command listener and the run
// publisher use.
type Transport interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
	PublishJSON(topic string, v any) error
}

// Actions is what remote commands can trigger. *session.Controller
// implements it.
type Actions interface {
	RunCategory(category macro.Category, source string) (*macro.Run, error)
	ToggleStop() bool
	SetStop(on bool)
}

// RunCommand is the payload of Topics.RunCommand.
type RunCommand struct {
	Category  string `json:"category"`
	RequestID string `json:"request_id,omitempty"`
}

// StopCommand is the payload of Topics.StopCommand. A nil Stop toggles.
type StopCommand struct {
	Stop      *bool  `json:"stop,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandResult is published on Topics.CommandResult after every command.
type CommandResult struct {
	RequestID string `json:"request_id,omitempty"`
	OK        bool   `json:"ok"`
	RunID     string `json:"run_id,omitempty"`
	Stopped   *bool  `json:"stopped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CommandListener turns messages on the station's command topics into
// controller calls.
type CommandListener struct {
	transport Transport
	topics    Topics
	actions   Actions
	logger    Logger
}

// NewCommandListener creates a listener for station. logger may be nil.
func NewCommandListener(transport Transport, station string, actions Actions, logger Logger) *CommandListener {
	return &CommandListener{
		transport: transport,
		topics:    Topics{Station: station},
		actions:   actions,
		logger:    logger,
	}
}

// Start subscribes to the command topics.
func (l *CommandListener) Start() error {
	if err := l.transport.Subscribe(l.topics.AllCommands(), 1, l.Handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Stop unsubscribes from the command topics.
func (l *CommandListener) Stop() error {
	return l.transport.Unsubscribe(l.topics.AllCommands())
}

// Handle dispatches one command message. The returned error is logged by
// the client; the outcome is also published as a CommandResult.
func (l *CommandListener) Handle(topic string, payload []byte) error {
	switch command := path.Base(topic); command {
	case "run":
		return l.handleRun(payload)
	case "stop":
		return l.handleStop(payload)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrInvalidCommand, command)
	}
}

func (l *CommandListener) handleRun(payload []byte) error {
	var cmd RunCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		l.reply("run", CommandResult{Error: err.Error()})
		return err
	}

	category, err := macro.ParseCategory(cmd.Category)
	if err == nil {
		var run *macro.Run
		run, err = l.actions.RunCategory(category, macro.SourceMQTT)
		if err == nil {
			l.reply("run", CommandResult{RequestID: cmd.RequestID, OK: true, RunID: run.ID})
			return nil
		}
	}
	l.reply("run", CommandResult{RequestID: cmd.RequestID, Error: err.Error()})
	return fmt.Errorf("run command: %w", err)
}

func (l *CommandListener) handleStop(payload []byte) error {
	var cmd StopCommand
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidCommand, err)
			l.reply("stop", CommandResult{Error: err.Error()})
			return err
		}
	}

	var on bool
	if cmd.Stop == nil {
		on = l.actions.ToggleStop()
	} else {
		on = *cmd.Stop
		l.actions.SetStop(on)
	}
	l.reply("stop", CommandResult{RequestID: cmd.RequestID, OK: true, Stopped: &on})
	return nil
}

func (l *CommandListener) reply(command string, result CommandResult) {
	if err := l.transport.PublishJSON(l.topics.CommandResult(command), result); err != nil && l.logger != nil {
		l.logger.Warn("publishing command result failed", "command", command, "error", err)
	}
}
