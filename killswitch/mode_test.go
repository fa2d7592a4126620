package killswitch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"off":       ModeOff,
		"":          ModeOff,
		"soft":      ModeSoft,
		"hard":      ModeHard,
		"permanent": ModeHard, // legacy name for hard mode
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("strict")
	assert.Error(t, err)
}

func TestModeYAML(t *testing.T) {
	data, err := yaml.Marshal(struct {
		Mode Mode `yaml:"mode"`
	}{Mode: ModeSoft})
	require.NoError(t, err)
	assert.Equal(t, "mode: soft\n", string(data))

	var out struct {
		Mode Mode `yaml:"mode"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("mode: hard\n"), &out))
	assert.Equal(t, ModeHard, out.Mode)
}

func TestUnknownModeDoesNotMarshal(t *testing.T) {
	_, err := Mode(42).MarshalText()
	assert.Error(t, err)
}
