package client

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"git.netflux.io/rob/mtxdash/internal/api"
	"git.netflux.io/rob/mtxdash/internal/domain"
	"git.netflux.io/rob/mtxdash/internal/mtxmetrics"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printPaths(w io.Writer, paths []domain.CombinedPath) error {
	if len(paths) == 0 {
		_, err := fmt.Fprintln(w, "No paths.")
		return err
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "NAME\tKIND\tORIGIN\tSOURCE\tACTIVE\tSTORED\tRECORD\tREADY\tREADERS\tRECEIVED")
	for _, p := range paths {
		source := "-"
		if p.Source.Type != nil {
			source = *p.Source.Type
		}
		fmt.Fprintf(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Name,
			p.Kind,
			p.Origin,
			source,
			yesNo(p.IsActive),
			yesNo(p.IsInDB),
			yesNo(p.Record),
			yesNo(p.Ready),
			p.Readers,
			formatBytes(p.BytesReceived),
		)
	}

	return tw.Flush()
}

func printPathRecord(w io.Writer, rec domain.PathRecord) error {
	conf, err := json.MarshalIndent(rec.Conf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal path conf: %w", err)
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Name:\t%s\n", rec.Name())
	fmt.Fprintf(tw, "ID:\t%s\n", rec.ID)
	fmt.Fprintf(tw, "Kind:\t%s\n", rec.Conf.Kind())
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(rec.CreatedAt))
	fmt.Fprintf(tw, "Updated:\t%s\n", formatTime(rec.UpdatedAt))
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Configuration:\n%s\n", conf)

	return err
}

func printLivePath(w io.Writer, p domain.LivePath) error {
	source := "-"
	if p.Source != nil {
		source = p.Source.Type
	}
	readyTime := "-"
	if p.ReadyTime != nil {
		readyTime = formatTime(*p.ReadyTime)
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Name:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Configuration:\t%s\n", p.ConfName)
	fmt.Fprintf(tw, "Source:\t%s\n", source)
	fmt.Fprintf(tw, "Ready:\t%s\n", yesNo(p.Ready))
	fmt.Fprintf(tw, "Ready since:\t%s\n", readyTime)
	fmt.Fprintf(tw, "Tracks:\t%s\n", joinOrDash(p.Tracks))
	fmt.Fprintf(tw, "Readers:\t%d\n", len(p.Readers))
	fmt.Fprintf(tw, "Received:\t%s\n", formatBytes(p.BytesReceived))
	fmt.Fprintf(tw, "Sent:\t%s\n", formatBytes(p.BytesSent))

	return tw.Flush()
}

func printPublishers(w io.Writer, publishers []domain.LivePath) error {
	if len(publishers) == 0 {
		_, err := fmt.Fprintln(w, "No active publishers.")
		return err
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "PATH\tSOURCE\tTRACKS\tREADERS\tRECEIVED")
	for _, p := range publishers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.Name, p.Source.Type, joinOrDash(p.Tracks), len(p.Readers), formatBytes(p.BytesReceived))
	}

	return tw.Flush()
}

func printConfig(w io.Writer, resp api.GetConfigResponse) error {
	keys := make([]string, 0, len(resp.LiveConfig))
	for k := range resp.LiveConfig {
		keys = append(keys, k)
	}
	for k := range resp.DBConfig {
		if _, ok := resp.LiveConfig[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "KEY\tLIVE\tSTORED\tDRIFT")
	for _, k := range keys {
		live, ok := resp.LiveConfig[k]
		liveStr := "-"
		if ok {
			liveStr = formatValue(live)
		}
		stored, ok := resp.DBConfig[k]
		storedStr := "-"
		if ok {
			storedStr = formatValue(stored)
		}
		drift := ""
		if slices.Contains(resp.Drift, k) {
			drift = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, liveStr, storedStr, drift)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case resp.DBConfig == nil:
		fmt.Fprintln(w, "No configuration has been stored.")
	case len(resp.Drift) > 0:
		fmt.Fprintf(w, "%d key(s) differ between the media server and the store.\n", len(resp.Drift))
	}

	return nil
}

func printSessions(w io.Writer, sessions []domain.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ID\tPROTOCOL\tPATH\tREMOTE\tSTATE\tCREATED\tRECEIVED\tSENT")
	for _, s := range sessions {
		fmt.Fprintf(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Protocol,
			cmp.Or(s.Path, "-"),
			cmp.Or(s.RemoteAddr, "-"),
			cmp.Or(s.State, "-"),
			formatTime(s.Created),
			formatBytes(s.BytesReceived),
			formatBytes(s.BytesSent),
		)
	}

	return tw.Flush()
}

func printMetrics(w io.Writer, m mtxmetrics.MediaServerMetrics) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "Scraped at:\t%s\n", formatTime(m.ScrapedAt))
	fmt.Fprintf(tw, "HLS muxers:\t%d\n", len(m.HLSMuxers))
	fmt.Fprintf(tw, "RTSP connections:\t%d\n", len(m.RTSPConns))
	fmt.Fprintf(tw, "RTSP sessions:\t%d\n", len(m.RTSPSessions))
	fmt.Fprintf(tw, "RTMP connections:\t%d\n", len(m.RTMPConns))
	fmt.Fprintf(tw, "SRT connections:\t%d\n", len(m.SRTConns))
	fmt.Fprintf(tw, "WebRTC sessions:\t%d\n", len(m.WebRTCSessions))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(m.Paths) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw = newTabWriter(w)
	fmt.Fprintln(tw, "PATH\tSTATE\tREADERS\tRECEIVED\tSENT")
	for _, p := range m.Paths {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%s\t%s\n", p.Name, p.State, p.Readers, formatBytes(uint64(p.BytesReceived)), formatBytes(uint64(p.BytesSent)))
	}

	return tw.Flush()
}

func printSnapshot(w io.Writer, snapshot api.PathsSnapshot) error {
	status := "connected"
	if !snapshot.Connected {
		status = "disconnected"
	}
	fmt.Fprintf(w, "--- %s (media server %s)\n", formatTime(snapshot.RefreshedAt), status)
	if snapshot.Error != "" {
		fmt.Fprintf(w, "Refresh failed: %s\n", snapshot.Error)
	}

	return printPaths(w, snapshot.Paths)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

func joinOrDash(s []string) string {
	if len(s) == 0 {
		return "-"
	}

	return strings.Join(s, ", ")
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}

	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
