package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sitePage = `
<html>
	<head>
		<title>Acme Roasters</title>
		<meta name="description" content="Small batch coffee from Porto">
	</head>
	<body>
		<nav>Home | Shop</nav>
		<main>
			<h1>Our beans</h1>
			<p>Roasted   every   morning.</p>
		</main>
		<footer>Copyright</footer>
	</body>
</html>`

func snapshotServer(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTakeSnapshot_InvalidURL(t *testing.T) {
	for _, raw := range []string{"not-a-valid-url", "ftp://example.com/file", "https://"} {
		_, err := TakeSnapshot(context.Background(), raw, nil)
		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr, raw)
		assert.Contains(t, err.Error(), "invalid URL")
	}
}

func TestTakeSnapshot_HTTPError(t *testing.T) {
	server := snapshotServer(t, http.StatusNotFound, nil)

	_, err := TakeSnapshot(context.Background(), server.URL, nil)
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
	assert.Contains(t, err.Error(), "404")
}

func TestTakeSnapshot_NotHTML(t *testing.T) {
	server := snapshotServer(t, http.StatusOK, []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"))

	_, err := TakeSnapshot(context.Background(), server.URL, nil)
	assert.ErrorIs(t, err, ErrNotHTML)
}

func TestTakeSnapshot_FallsBackToBody(t *testing.T) {
	server := snapshotServer(t, http.StatusOK, []byte(`<html><body><nav>Menu</nav><div>Some content here.</div></body></html>`))

	snap, err := TakeSnapshot(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "Some content here.", snap.Text)
}

func TestTakeSnapshot(t *testing.T) {
	server := snapshotServer(t, http.StatusOK, []byte(sitePage))

	snap, err := TakeSnapshot(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "Acme Roasters", snap.Title)
	assert.Equal(t, "Small batch coffee from Porto", snap.Description)
	assert.False(t, snap.Truncated)
	assert.False(t, snap.FetchedAt.IsZero())

	rendered := snap.String()
	assert.True(t, strings.HasPrefix(rendered, "URL: "+server.URL))
	assert.Contains(t, rendered, "Title: Acme Roasters")
	assert.Contains(t, rendered, "Our beans")
	assert.Contains(t, rendered, "Roasted every morning.")
	assert.NotContains(t, rendered, "Home | Shop")
	assert.NotContains(t, rendered, "Copyright")
}

func TestTakeSnapshot_Truncates(t *testing.T) {
	server := snapshotServer(t, http.StatusOK, []byte("<html><body><main>"+strings.Repeat("ç", 50)+"</main></body></html>"))

	opts := DefaultOptions()
	opts.MaxChars = 10
	snap, err := TakeSnapshot(context.Background(), server.URL, opts)
	require.NoError(t, err)
	assert.True(t, snap.Truncated)
	assert.Equal(t, strings.Repeat("ç", 10), snap.Text)
}

func TestCachedFetcher(t *testing.T) {
	var calls atomic.Int32
	f := NewCachedFetcher(nil)
	f.fetch = func(_ context.Context, url string, _ *Options) (*Snapshot, error) {
		calls.Add(1)
		if strings.Contains(url, "broken") {
			return nil, errors.New("boom")
		}
		return &Snapshot{URL: url, Text: "hello"}, nil
	}

	ctx := context.Background()
	first, err := f.Snapshot(ctx, "https://acme.example")
	require.NoError(t, err)
	second, err := f.Snapshot(ctx, "https://acme.example")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())

	_, err = f.Snapshot(ctx, "https://broken.example")
	require.Error(t, err)
	_, err = f.Snapshot(ctx, "https://broken.example")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, f.Len())
}
