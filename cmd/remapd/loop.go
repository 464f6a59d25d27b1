package main

import (
	"context"
	"time"

	"remapd/internal/device"
	"remapd/internal/history"
	"remapd/internal/ipc"
	"remapd/internal/keymap"
	"remapd/internal/keys"
	"remapd/internal/logging"
	"remapd/internal/metrics"
	"remapd/internal/session"
	"remapd/internal/stage"
)

// updateLoop is the single goroutine that owns the stage. It alternates
// between waiting for input, running the translation and draining the
// output, exactly one event at a time; the stage itself never blocks.
type updateLoop struct {
	*daemon
	stage   *stage.Stage
	virt    *device.VirtualDevice
	grabber *device.Grabber
	msgs    <-chan *ipc.Message
	session <-chan session.Event

	sendBuffer []keys.KeyEvent

	// scheduled flush of the send buffer, for timeout outputs and
	// debouncing
	flushTimer *time.Timer

	// armed quiet-period wait for a timeout pattern
	inputTimer        *time.Timer
	inputTimeout      time.Duration
	inputTimeoutStart time.Time

	lastEvent   keys.KeyEvent
	lastDevice  int
	virtualDown map[keys.Key]bool
}

// run drives the loop until shutdown, exit sequence or connection loss.
// done is true when the process should exit with code.
func (l *updateLoop) run(ctx context.Context) (code int, done bool) {
	defer l.stopTimers()

	for {
		// configuration updates only apply while no key is down, so a
		// replacement never strands a held output key
		clientC := l.msgs
		if l.stage.IsOutputDown() {
			clientC = nil
		}

		var flushC, inputC <-chan time.Time
		if l.flushTimer != nil {
			flushC = l.flushTimer.C
		}
		if l.inputTimer != nil {
			inputC = l.inputTimer.C
		}

		select {
		case <-ctx.Done():
			return 0, true

		case ev, ok := <-l.grabber.Events():
			if !ok {
				logging.Error("reading input event failed")
				return 0, false
			}
			if ke, ok := device.ToKeyEvent(ev); ok {
				l.translateInput(ke, ev.Device)
			} else {
				// forward other events untranslated
				metrics.EventsPassthrough.Inc()
				l.virt.SendRaw(ev)
				continue
			}

		case <-flushC:
			l.flushTimer = nil

		case <-inputC:
			l.inputTimer = nil
			d := l.inputTimeout
			l.inputTimeout = 0
			l.translateInput(keys.MakeInputTimeoutEvent(d), l.lastDevice)

		case ev := <-l.session:
			switch ev {
			case session.Locked:
				l.grabber.Suspend()
				l.record(history.KindSessionLocked, "")
			case session.Unlocked:
				l.grabber.Resume()
				l.record(history.KindSessionUnlocked, "")
			}
			continue

		case msg, ok := <-clientC:
			if !ok {
				return 0, false
			}
			if reconnect := l.handleClientMessage(msg); reconnect {
				return 0, false
			}
		}

		if l.flushTimer == nil {
			if !l.flushSendBuffer() {
				logging.Error("sending input failed")
				return 0, false
			}
		}

		if l.stage.ShouldExit() {
			logging.Info("read exit sequence")
			l.record(history.KindExitSequence, "")
			return 0, true
		}
	}
}

func (l *updateLoop) stopTimers() {
	if l.flushTimer != nil {
		l.flushTimer.Stop()
	}
	if l.inputTimer != nil {
		l.inputTimer.Stop()
	}
}

// handleClientMessage applies a front-end message. reconnect is true when
// the connection must be torn down because the device set has to change.
func (l *updateLoop) handleClientMessage(msg *ipc.Message) (reconnect bool) {
	switch msg.Header.Type {
	case ipc.MsgConfiguration:
		cfg, err := keymap.Parse(msg.Payload)
		if err != nil {
			logging.Error("configuration rejected", "error", err)
			return false
		}
		metrics.ConfigsReceived.Inc()
		l.record(history.KindConfigReceived, "")
		logging.Info("received configuration", "contexts", len(cfg.Contexts))

		next := stage.New(cfg)
		if next.HasMouseMappings() != l.stage.HasMouseMappings() {
			// the device layer must rebind, which means a fresh session
			logging.Info("mouse usage in configuration changed")
			return true
		}
		l.stage = next
		l.stage.EvaluateDeviceFilters(l.grabber.Names())

	case ipc.MsgActiveContexts:
		var payload ipc.ActiveContextsPayload
		if err := ipc.Decode(msg.Payload, &payload); err != nil {
			logging.Warn("active contexts message rejected", "error", err)
			return false
		}
		logging.Debug("received contexts", "count", len(payload.Indices))
		l.stage.SetActiveContexts(payload.Indices)
	}
	return false
}

// translateInput runs one event through the stage, mirroring the reference
// driver: repeats are ignored while a flush or timeout is pending, and a
// pending quiet-period wait is cancelled by re-delivering the elapsed
// duration before the new event.
func (l *updateLoop) translateInput(input keys.KeyEvent, deviceIndex int) {
	if input == l.lastEvent && (l.flushTimer != nil || l.inputTimer != nil) {
		return
	}

	if l.inputTimer != nil {
		elapsed := time.Since(l.inputTimeoutStart)
		l.inputTimer.Stop()
		l.inputTimer = nil
		l.inputTimeout = 0
		l.translateInput(keys.MakeInputTimeoutEvent(elapsed), deviceIndex)
	}

	l.lastEvent = input
	l.lastDevice = deviceIndex

	output := l.stage.Update(input, deviceIndex)
	metrics.EventsTranslated.Inc()
	metrics.OutputKeysDown.Set(int64(l.stage.OutputDownCount()))

	// a trailing quiet-period marker arms the input timeout instead of
	// being sent
	if n := len(output); n > 0 && keys.IsInputTimeoutEvent(output[n-1]) {
		l.inputTimeout = output[n-1].Timeout
		l.inputTimeoutStart = time.Now()
		l.inputTimer = time.NewTimer(l.inputTimeout)
		output = output[:n-1]
	}

	l.sendBuffer = append(l.sendBuffer, output...)
	l.stage.ReuseBuffer(output)
}

// scheduleFlush postpones sending the rest of the buffer.
func (l *updateLoop) scheduleFlush(delay time.Duration) {
	if l.flushTimer != nil {
		return
	}
	l.flushTimer = time.NewTimer(delay)
}

// flushSendBuffer forwards pending output events: action keys become
// front-end invocations, virtual keys toggle and re-enter the stage,
// timeout markers postpone the rest, everything else goes to the virtual
// device.
func (l *updateLoop) flushSendBuffer() bool {
	i := 0
	for ; i < len(l.sendBuffer); i++ {
		e := l.sendBuffer[i]
		isLast := i == len(l.sendBuffer)-1

		if keys.IsAction(e.Key) {
			if e.State == keys.Down {
				idx := keys.ActionIndex(e.Key)
				metrics.ActionsTriggered.Inc()
				l.record(history.KindActionTriggered, keys.KeyName(e.Key))
				if err := l.port.SendTriggeredAction(idx); err != nil {
					logging.Warn("sending triggered action failed", "index", idx, "error", err)
				}
			}
			continue
		}

		if keys.IsVirtual(e.Key) {
			if e.State == keys.Down {
				l.toggleVirtualKey(e.Key)
			}
			continue
		}

		if e.Key == keys.KeyTimeout {
			l.scheduleFlush(e.Timeout)
			i++
			break
		}

		if l.debouncer != nil && e.State == keys.Down {
			if delay := l.debouncer.OnKeyDown(e.Key, !isLast); delay > 0 {
				l.scheduleFlush(delay)
				break
			}
		}

		if !l.virt.SendKeyEvent(e) {
			return false
		}
	}
	l.sendBuffer = append(l.sendBuffer[:0], l.sendBuffer[i:]...)

	return l.virt.Flush()
}

// toggleVirtualKey flips a virtual key and feeds the edge back through the
// stage as synthetic input. The loop, not the stage, owns the toggle set
// it forwards, so the stage never calls back into itself.
func (l *updateLoop) toggleVirtualKey(k keys.Key) {
	state := keys.Down
	if l.virtualDown == nil {
		l.virtualDown = make(map[keys.Key]bool)
	}
	if l.virtualDown[k] {
		delete(l.virtualDown, k)
		state = keys.Up
	} else {
		l.virtualDown[k] = true
	}
	l.translateInput(keys.KeyEvent{Key: k, State: state}, stage.AnyDevice)
}
