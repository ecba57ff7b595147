// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"os"

	"github.com/Meinersbur/isl/pkg/log"
	"github.com/Meinersbur/isl/pkg/stat"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func serveHTTP(addr, output string) {
	mux := http.NewServeMux()
	handle := func(pattern string, handler func(http.ResponseWriter, *http.Request)) {
		mux.Handle(pattern, handlers.CompressHandler(http.HandlerFunc(handler)))
	}
	handle("/", httpSummary)
	handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}).ServeHTTP)
	handle("/source", func(w http.ResponseWriter, r *http.Request) {
		httpSource(w, r, output)
	})
	// Browsers like to request this, without special handler this goes to / handler.
	handle("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {})

	log.Logf(0, "serving http on http://%v", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("failed to listen on %v: %v", addr, err)
		}
	}()
}

type uiSummary struct {
	Stats []stat.UI
	Log   string
}

func httpSummary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := &uiSummary{
		Stats: stat.Collect(stat.All),
		Log:   log.CachedLogOutput(),
	}
	buf := new(bytes.Buffer)
	if err := summaryTemplate.Execute(buf, data); err != nil {
		log.Logf(0, "failed to execute template: %v", err)
		http.Error(w, fmt.Sprintf("failed to execute template: %v", err), http.StatusInternalServerError)
		return
	}
	w.Write(buf.Bytes())
}

func httpSource(w http.ResponseWriter, r *http.Request, output string) {
	src, err := os.ReadFile(output)
	if err != nil {
		http.Error(w, fmt.Sprintf("no reduction yet: %v", err), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(src)
}

var summaryTemplate = template.Must(template.New("").Parse(`
<!doctype html>
<html>
<head>
	<title>isl-trace2c</title>
	<meta http-equiv="refresh" content="10">
	<style>
		table { border-collapse: collapse; }
		td { border: 1px solid #ccc; padding: 2px 8px; }
		td.stat { font-weight: bold; }
	</style>
</head>
<body>
<b>isl-trace2c</b> | <a href="/source">best reduction</a> | <a href="/metrics">metrics</a>
<br><br>
<table>
	{{range $s := $.Stats}}
	<tr>
		<td class="stat" title="{{$s.Desc}}">{{$s.Name}}</td>
		<td>{{$s.Value}}</td>
	</tr>
	{{end}}
</table>
<br>
<b>Log:</b>
<br>
<textarea id="log_textarea" readonly rows="20" wrap="off" style="width: 100%">
{{.Log}}
</textarea>
<script>
	var textarea = document.getElementById("log_textarea");
	textarea.scrollTop = textarea.scrollHeight;
</script>
</body></html>
`))
