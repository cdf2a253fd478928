package extract

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var errTooManyRedirects = errors.New("too many redirects")

// rawFetcher speaks HTTP/1.1 directly over a socket. Unlike net/http it
// skips header lines it cannot parse instead of failing the whole response,
// which is what some ticketing front-ends need.
type rawFetcher struct {
	timeout      time.Duration
	maxRedirects int
	dialer       *net.Dialer
}

func newRawFetcher(opts Options) *rawFetcher {
	return &rawFetcher{
		timeout:      opts.Timeout,
		maxRedirects: opts.MaxRedirects,
		dialer:       &net.Dialer{Timeout: opts.Timeout},
	}
}

type rawResponse struct {
	status  int
	headers map[string]string
	body    string
}

// fetch follows at most maxRedirects redirects within one timeout budget.
func (f *rawFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	current := rawURL
	for hop := 0; ; hop++ {
		u, err := url.Parse(current)
		if err != nil {
			return "", fmt.Errorf("fallback parse url: %w", err)
		}
		resp, err := f.roundTrip(ctx, u)
		if err != nil {
			return "", err
		}

		if resp.status >= 300 && resp.status < 400 {
			loc := resp.headers["location"]
			if loc == "" {
				return "", fmt.Errorf("fallback status %d without location", resp.status)
			}
			if hop >= f.maxRedirects {
				return "", errTooManyRedirects
			}
			next, err := u.Parse(loc)
			if err != nil {
				return "", fmt.Errorf("fallback redirect target: %w", err)
			}
			current = next.String()
			continue
		}
		if resp.status < 200 || resp.status > 299 {
			return "", fmt.Errorf("fallback status %d", resp.status)
		}
		return resp.body, nil
	}
}

func (f *rawFetcher) roundTrip(ctx context.Context, u *url.URL) (*rawResponse, error) {
	conn, err := f.dial(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fallback dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := io.WriteString(conn, buildRequest(u)); err != nil {
		return nil, fmt.Errorf("fallback write: %w", err)
	}
	return readResponse(bufio.NewReader(conn))
}

func (f *rawFetcher) dial(ctx context.Context, u *url.URL) (net.Conn, error) {
	host := u.Hostname()
	port := u.Port()
	switch strings.ToLower(u.Scheme) {
	case "http":
		if port == "" {
			port = "80"
		}
		return f.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	case "https":
		if port == "" {
			port = "443"
		}
		d := &tls.Dialer{
			NetDialer: f.dialer,
			Config:    &tls.Config{ServerName: host, InsecureSkipVerify: true}, // #nosec G402 -- same posture as the primary client
		}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func buildRequest(u *url.URL) string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", u.RequestURI())
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)
	for k, v := range browserHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("Accept-Encoding: identity\r\n")
	b.WriteString("Connection: close\r\n\r\n")
	return b.String()
}

// readResponse parses a status line, headers and body leniently.
func readResponse(r *bufio.Reader) (*rawResponse, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return nil, fmt.Errorf("fallback status line: %w", err)
	}
	fields := strings.Fields(statusLine)
	if len(fields) < 2 || !strings.HasPrefix(strings.ToUpper(fields[0]), "HTTP/") {
		return nil, fmt.Errorf("fallback malformed status line %q", statusLine)
	}
	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("fallback malformed status code %q", fields[1])
	}

	headers := make(map[string]string)
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("fallback headers: %w", err)
		}
		if line == "" {
			break
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:idx]))
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		headers[key] = strings.TrimSpace(line[idx+1:])
	}

	body, err := readBody(r, headers)
	if err != nil {
		return nil, err
	}
	return &rawResponse{status: status, headers: headers, body: body}, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func readBody(r *bufio.Reader, headers map[string]string) (string, error) {
	var src io.Reader = r
	if strings.Contains(strings.ToLower(headers["transfer-encoding"]), "chunked") {
		src = httputil.NewChunkedReader(r)
	} else if n, err := strconv.ParseInt(headers["content-length"], 10, 64); err == nil && n >= 0 {
		src = io.LimitReader(r, n)
	}

	body, err := io.ReadAll(io.LimitReader(src, maxBodyBytes))
	if err != nil && len(body) == 0 {
		return "", fmt.Errorf("fallback body: %w", err)
	}
	// A truncated body still tends to carry the <head>; keep what arrived.
	return string(body), nil
}
