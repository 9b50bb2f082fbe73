// Command-line report submission client: gathers a report (optionally
// with a gzipped log tail) and posts it to a sygnalista server.
package main

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/kr/pretty"
)

const (
	maxFullLogBytes   = 20_000_000
	maxTailLogBytes   = 5_000_000
	minTailLogBytes   = 200_000
	maxLogBase64Chars = 8_000_000
)

var (
	baseURL, appID, appVersion, appBuild, appChannel string
	kind, title, description, email                  string
	appToken, logPath                                string
)

func init() {
	flag.Usage = func() {
		flag.PrintDefaults()
	}
	flag.StringVar(&baseURL, "server", "http://127.0.0.1:8080", "sygnalista server base URL")
	flag.StringVar(&appID, "app", "", "application id (required)")
	flag.StringVar(&appVersion, "version", "", "application version")
	flag.StringVar(&appBuild, "build", "", "application build")
	flag.StringVar(&appChannel, "channel", "", "application release channel")
	flag.StringVar(&kind, "kind", "bug", "report kind (bug | suggestion)")
	flag.StringVar(&title, "title", "", "report title (required)")
	flag.StringVar(&description, "desc", "", "report description (required)")
	flag.StringVar(&email, "email", "", "contact email (optional, becomes public)")
	flag.StringVar(&appToken, "token", "", "per-app shared secret, if the server requires one")
	flag.StringVar(&logPath, "log", "", "path to a log file to attach (gzipped and base64 encoded)")
	flag.Parse()
}

func main() {
	if appID == "" || title == "" || description == "" {
		fmt.Fprintln(os.Stderr, "missing required flags: -app, -title, -desc")
		flag.Usage()
		os.Exit(2)
	}

	app := map[string]interface{}{"id": appID}
	if appVersion != "" {
		app["version"] = appVersion
	}
	if appBuild != "" {
		app["build"] = appBuild
	}
	if appChannel != "" {
		app["channel"] = appChannel
	}

	body := map[string]interface{}{
		"app":         app,
		"kind":        kind,
		"title":       title,
		"description": description,
		"diagnostics": map[string]interface{}{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		},
	}
	if email != "" {
		body["email"] = email
	}
	if logPath != "" {
		logs, err := prepareLog(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not prepare log file: %v\n", err.Error())
			os.Exit(3)
		}
		body["logs"] = logs
	}

	payload, err := json.Marshal(body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not encode report: %v\n", err.Error())
		os.Exit(3)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/v1/report", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create request: %v\n", err.Error())
		os.Exit(4)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if appToken != "" {
		req.Header.Set("x-sygnalista-app-token", appToken)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err.Error())
		os.Exit(4)
	}
	defer resp.Body.Close()

	data := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		fmt.Fprintf(os.Stderr, "could not decode response from server: %v\n", err.Error())
		os.Exit(5)
	}
	fmt.Printf("%v %v\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	_, _ = pretty.Println(data)
	if resp.StatusCode != http.StatusCreated {
		os.Exit(1)
	}
}

// prepareLog gzips the log file and base64 encodes it, falling back to a
// progressively smaller tail until the encoded payload fits the server's
// size ceiling.
func prepareLog(path string) (map[string]interface{}, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	originalBytes := fi.Size()

	if originalBytes <= maxFullLogBytes {
		full, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if b64, err := gzipBase64(full); err == nil && len(b64) <= maxLogBase64Chars {
			return logsPayload(path, originalBytes, false, b64), nil
		}
	}

	tailSize := min64(maxTailLogBytes, originalBytes)
	minTail := min64(minTailLogBytes, tailSize)
	var b64 string
	for tailSize >= minTail {
		tail, err := readTail(path, tailSize)
		if err != nil {
			return nil, err
		}
		b64, err = gzipBase64(tail)
		if err != nil {
			return nil, err
		}
		if len(b64) <= maxLogBase64Chars || tailSize == minTail {
			return logsPayload(path, originalBytes, originalBytes > tailSize, b64), nil
		}
		tailSize = max64(minTail, tailSize/2)
	}
	return logsPayload(path, originalBytes, originalBytes > 0, b64), nil
}

func logsPayload(path string, originalBytes int64, truncated bool, b64 string) map[string]interface{} {
	return map[string]interface{}{
		"fileName":      filepath.Base(path) + ".gz",
		"contentType":   "application/gzip",
		"encoding":      "base64",
		"dataBase64":    b64,
		"originalBytes": originalBytes,
		"truncated":     truncated,
	}
}

func readTail(path string, tailBytes int64) ([]byte, error) {
	if tailBytes <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(-tailBytes, io.SeekEnd); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

func gzipBase64(data []byte) (string, error) {
	buf := new(bytes.Buffer)
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
