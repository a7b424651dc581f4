package metrics

import "net/http"

// NoopMetrics records nothing.
type NoopMetrics struct{}

var _ Recorder = NoopMetrics{}

func (NoopMetrics) RecordSessionRefresh(bool) {}
func (NoopMetrics) RecordTorrentAdded(bool) {}
func (NoopMetrics) RecordFileDownloaded(int64) {}
func (NoopMetrics) RecordTorrentImported() {}
func (NoopMetrics) RecordTorrentDeleted() {}

func (NoopMetrics) InstrumentRoundTripper(rt http.RoundTripper) http.RoundTripper { return rt }
