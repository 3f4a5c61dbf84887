package dify

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns its chunks one Read at a time.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func drain(t *testing.T, d *Decoder) ([]string, error) {
	t.Helper()
	var out []string
	for {
		f, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

func TestDecoderThreeChunkScenario(t *testing.T) {
	r := &chunkReader{chunks: []string{
		"data: {\"answer\":\"Ol",
		"á\"}\ndata: {\"answer\":\" mundo\"}\n",
		"data: [DONE]\n",
	}}

	got, err := drain(t, NewDecoder(r))
	require.NoError(t, err)
	assert.Equal(t, []string{"Olá", " mundo"}, got)
	assert.Equal(t, "Olá mundo", strings.Join(got, ""))
}

func TestDecoderChunkBoundaryIndependence(t *testing.T) {
	stream := "data: {\"event\":\"message\",\"answer\":\"A graça\"}\n" +
		"\n" +
		"event: ping\n" +
		"data: {\"event\":\"message\",\"answer\":\" de Deus\",\"conversation_id\":\"conv-1\"}\n" +
		"data: {\"event\":\"message\",\"answer\":\" é **suficiente**\"}\n" +
		"data: {\"event\":\"message_end\"}\n" +
		"data: [DONE]\n" +
		"data: {\"answer\":\"ignored after done\"}\n"
	const want = "A graça de Deus é suficiente"

	whole, err := drain(t, NewDecoder(strings.NewReader(stream)))
	require.NoError(t, err)
	assert.Equal(t, want, strings.Join(whole, ""))

	oneByte, err := drain(t, NewDecoder(iotest.OneByteReader(strings.NewReader(stream))))
	require.NoError(t, err)
	assert.Equal(t, whole, oneByte)

	for split := 1; split < len(stream); split++ {
		r := &chunkReader{chunks: []string{stream[:split], stream[split:]}}
		got, err := drain(t, NewDecoder(r))
		require.NoError(t, err)
		require.Equal(t, want, strings.Join(got, ""), "split at %d", split)
	}
}

func TestDecoderSkipsMalformedRecords(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"answer":"um"}`,
		`data: {"answer":`,
		`data: not json at all`,
		`data: "just a string"`,
		`data: {"answer":" dois"}`,
		`garbage line`,
		`data: {"answer":" três"}`,
	}, "\n") + "\n"

	got, err := drain(t, NewDecoder(iotest.HalfReader(strings.NewReader(stream))))
	require.NoError(t, err)
	assert.Equal(t, []string{"um", " dois", " três"}, got)
}

func TestDecoderProcessesTrailingLineWithoutNewline(t *testing.T) {
	got, err := drain(t, NewDecoder(strings.NewReader("data: {\"answer\":\"fim\"}")))
	require.NoError(t, err)
	assert.Equal(t, []string{"fim"}, got)
}

func TestDecoderErrorEvent(t *testing.T) {
	stream := "data: {\"answer\":\"parcial\"}\n" +
		"data: {\"event\":\"error\",\"status\":400,\"code\":\"invalid_param\",\"message\":\"bad\"}\n" +
		"data: {\"answer\":\"never\"}\n"

	d := NewDecoder(strings.NewReader(stream))
	got, err := drain(t, d)
	assert.Equal(t, []string{"parcial"}, got)

	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "invalid_param", streamErr.Code)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecoderReadErrorSurfacesOnce(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader("data: {\"answer\":\"a\"}\n"), iotest.ErrReader(boom))

	d := NewDecoder(r)
	got, err := drain(t, d)
	assert.Equal(t, []string{"a"}, got)
	require.ErrorIs(t, err, boom)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "bold and italics", input: "**Graça** e _paz_", want: "Graça e paz"},
		{name: "headings and quotes", input: "## Título\n> citação", want: " Título\n citação"},
		{name: "link collapsed", input: "veja [o site](https://iecb.org.br)", want: "veja o site"},
		{name: "code and strike", input: "`x` ~~y~~", want: "x y"},
		{name: "plain", input: "Olá mundo", want: "Olá mundo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}
