package metrics

// The daemon's metric set, registered on a shared registry the same way
// each component reaches for the logger.

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Daemon metrics.
var (
	// EventsTranslated counts key events run through the stage.
	EventsTranslated = NewCounter("remapd_events_translated_total",
		"Key events processed by the translation stage")

	// EventsPassthrough counts raw non-key events forwarded unchanged.
	EventsPassthrough = NewCounter("remapd_events_passthrough_total",
		"Non-key events forwarded to the virtual device untranslated")

	// ActionsTriggered counts action-key presses dispatched to the
	// front-end.
	ActionsTriggered = NewCounter("remapd_actions_triggered_total",
		"Command invocations requested from the front-end")

	// ConfigsReceived counts configuration replacements.
	ConfigsReceived = NewCounter("remapd_configs_received_total",
		"Configurations received from the front-end")

	// DevicesGrabbed is the number of exclusively held input devices.
	DevicesGrabbed = NewGauge("remapd_devices_grabbed",
		"Input devices currently grabbed")

	// OutputKeysDown is the number of keys the virtual device holds.
	OutputKeysDown = NewGauge("remapd_output_keys_down",
		"Keys currently held down on the virtual device")
)

func init() {
	defaultRegistry.Register(EventsTranslated)
	defaultRegistry.Register(EventsPassthrough)
	defaultRegistry.Register(ActionsTriggered)
	defaultRegistry.Register(ConfigsReceived)
	defaultRegistry.Register(DevicesGrabbed)
	defaultRegistry.Register(OutputKeysDown)
}
