package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputListing = `Sink Input #42
	Driver: protocol-native.c
	Owner Module: 12
	Client: 55
	Sink: alsa_output.pci-0000_00_1f.3.analog-stereo
	Sample Specification: float32le 2ch 48000Hz
	Properties:
		application.name = "WEBRTC VoiceEngine"
		application.process.binary = "Discord"

Sink Input #57
	Driver: protocol-native.c
	Sink: alsa_output.pci-0000_00_1f.3.analog-stereo
	Properties:
		application.name = "Firefox"
		application.process.binary = "firefox"

Sink Input #61
	Driver: protocol-native.c
	Sink: bluez_sink.headset
	Properties:
		application.name = "WEBRTC VoiceEngine"
		application.process.binary = "DiscordCanary"
`

func TestParseSinkInputs(t *testing.T) {
	inputs := parseSinkInputs(sinkInputListing)
	require.Len(t, inputs, 3)

	assert.Equal(t, 42, inputs[0].Index)
	assert.Equal(t, "alsa_output.pci-0000_00_1f.3.analog-stereo", inputs[0].Sink)
	assert.Equal(t, "Discord", inputs[0].ProcessName)

	assert.Equal(t, 57, inputs[1].Index)
	assert.Equal(t, "firefox", inputs[1].ProcessName)

	assert.Equal(t, 61, inputs[2].Index)
	assert.Equal(t, "bluez_sink.headset", inputs[2].Sink)
}

func TestParseSinkInputsEmpty(t *testing.T) {
	assert.Empty(t, parseSinkInputs(""))
	assert.Empty(t, parseSinkInputs("no sink inputs here\n"))
}

func TestDiscordSinkInputs(t *testing.T) {
	inputs := discordSinkInputs(parseSinkInputs(sinkInputListing))
	require.Len(t, inputs, 2)
	assert.Equal(t, 42, inputs[0].Index)
	assert.Equal(t, 61, inputs[1].Index)
}

func TestParseModuleIndex(t *testing.T) {
	idx, ok := parseModuleIndex("536870913\n")
	require.True(t, ok)
	assert.Equal(t, 536870913, idx)

	_, ok = parseModuleIndex("Failure: Module initialization failed")
	assert.False(t, ok)
}

func TestMatchDeviceName(t *testing.T) {
	assert.True(t, matchDeviceName("BlackHole 2ch", []string{"blackhole"}))
	assert.True(t, matchDeviceName("discrec_capture.monitor", []string{"discrec_capture"}))
	assert.False(t, matchDeviceName("Built-in Microphone", []string{"blackhole", "virtual"}))
}
