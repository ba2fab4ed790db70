package sonarlink

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sidescan/internal/sonar"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"  a  b\tc ", []string{"a", "b", "c"}, false},
		{`1 "two words" 3`, []string{"1", "two words", "3"}, false},
		{`"esc \"q\"" x`, []string{`esc "q"`, "x"}, false},
		{`"" x`, []string{"", "x"}, false},
		{`"unterminated`, nil, true},
	}
	for _, tt := range tests {
		got, err := Tokenize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestRequestLine(t *testing.T) {
	line := FormatRequest(42, VerbSet, "/sensor/uart", "nmea port", uint(1), int64(-250), uint32(2), uint32(3))
	assert.Equal(t, `42 SET /sensor/uart "nmea port" 1 -250 2 3`, line)

	req, err := ParseRequest(line)
	require.NoError(t, err)
	assert.Equal(t, Request{
		ID:   42,
		Verb: VerbSet,
		Path: "/sensor/uart",
		Args: []string{"nmea port", "1", "-250", "2", "3"},
	}, req)

	assert.Equal(t, "7 SET /gain/port/auto 0.5 0.6", FormatRequest(7, VerbSet, "/gain/port/auto", 0.5, 0.6))
	assert.Equal(t, "8 MASTER", FormatRequest(8, VerbMaster, ""))

	for _, bad := range []string{"", "STOP", "x STOP"} {
		_, err := ParseRequest(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseReply(t *testing.T) {
	r, err := ParseReply(`3 OK 1 "lfm-100k"`)
	require.NoError(t, err)
	assert.Equal(t, Reply{ID: 3, OK: true, Fields: []string{"1", "lfm-100k"}}, r)

	r, err = ParseReply("4 OK")
	require.NoError(t, err)
	assert.True(t, r.OK)
	assert.Empty(t, r.Fields)

	r, err = ParseReply("5 ERR generator disabled")
	require.NoError(t, err)
	assert.Equal(t, Reply{ID: 5, Message: "generator disabled"}, r)

	for _, bad := range []string{"OK", "x OK", "6 MAYBE"} {
		_, err := ParseReply(bad)
		assert.Error(t, err, bad)
	}
}

func TestEnumWireForm(t *testing.T) {
	values := []sonar.EnumValue{{Value: 0, Name: "none"}, {Value: 7, Name: "/dev/tty USB0"}}

	reply, err := ParseReply(FormatOK(1, FormatEnum(values)...))
	require.NoError(t, err)
	got, err := ParseEnum(reply.Fields)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	reply, err = ParseReply(FormatOK(2, FormatEnum(nil)...))
	require.NoError(t, err)
	got, err = ParseEnum(reply.Fields)
	require.NoError(t, err)
	assert.Nil(t, got, "unavailable enumeration")

	reply, err = ParseReply(FormatOK(3, FormatEnum([]sonar.EnumValue{})...))
	require.NoError(t, err)
	got, err = ParseEnum(reply.Fields)
	require.NoError(t, err)
	assert.NotNil(t, got, "available but empty enumeration")
	assert.Empty(t, got)

	_, err = ParseEnum([]string{"1"})
	assert.Error(t, err)
	_, err = ParseEnum([]string{"x", "name"})
	assert.Error(t, err)
}
