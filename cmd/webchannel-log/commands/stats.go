package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mash-protocol/webchannel-go/pkg/log"
	"github.com/mash-protocol/webchannel-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	MessagesByType    map[wire.MessageType]int
	Transports        map[string]*TransportStats
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// TransportStats holds statistics for a single transport.
type TransportStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
	Requests   int
	Responses  int
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		MessagesByType:    make(map[wire.MessageType]int),
		Transports:        make(map[string]*TransportStats),
	}
	if err := reader.Each(func(event log.Event) error {
		stats.add(event)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	return stats, nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	ts, ok := s.Transports[event.TransportID]
	if !ok {
		ts = &TransportStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Transports[event.TransportID] = ts
	}
	ts.Events++
	if event.Timestamp.After(ts.LastSeen) {
		ts.LastSeen = event.Timestamp
	}
	if ts.RemoteAddr == "" {
		ts.RemoteAddr = event.RemoteAddr
	}

	if msg := event.Message; msg != nil {
		s.MessagesByType[msg.Type]++
		switch {
		case msg.Type == wire.TypeResponse:
			ts.Responses++
		case msg.RequestID != nil && event.Direction == log.DirectionIn:
			ts.Requests++
		}
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== WebChannel Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerChannel} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByType) > 0 {
		fmt.Fprintln(w, "Messages by Type:")
		for t := wire.TypeSignal; t <= wire.TypeResponse; t++ {
			if count := stats.MessagesByType[t]; count > 0 {
				fmt.Fprintf(w, "  %-24s %d\n", t.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Transports: %d\n", len(stats.Transports))
	if len(stats.Transports) > 0 {
		type transportInfo struct {
			id    string
			stats *TransportStats
		}
		transports := make([]transportInfo, 0, len(stats.Transports))
		for id, ts := range stats.Transports {
			transports = append(transports, transportInfo{id, ts})
		}
		sort.Slice(transports, func(i, j int) bool {
			return transports[i].stats.FirstSeen.Before(transports[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, t := range transports {
			duration := t.stats.LastSeen.Sub(t.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(t.id), t.stats.Events, duration)
			if t.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", t.stats.RemoteAddr)
			}
			if t.stats.Requests > 0 || t.stats.Responses > 0 {
				fmt.Fprintf(w, "           Requests: %d, responses: %d\n", t.stats.Requests, t.stats.Responses)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
