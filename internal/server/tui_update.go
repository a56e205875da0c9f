// ABOUTME: TUI update helpers for server
// ABOUTME: Functions to send server state updates to TUI
package server

import (
	"fmt"
	"sort"
)

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// status builds a snapshot of the server state
func (s *Server) status() ServerStatus {
	f := s.source.ActualFormat()
	st := ServerStatus{
		Name:   s.config.Name,
		Port:   s.config.Port,
		Stream: fmt.Sprintf("%s in %s (%s)", s.source.Codec(), s.source.ContainerName(), f),
		Title:  "Idle",
	}

	if s.controller != nil {
		if item, pos, ok := s.controller.Current(); ok {
			st.Title = item.Title
			st.Position = pos
		}
		st.Paused = s.controller.Paused()
	}

	s.listenersMu.RLock()
	st.Segments = s.segments
	st.Chunks = s.chunks
	st.Bytes = s.bytesProduced
	st.Listeners = make([]ListenerInfo, 0, len(s.listeners))
	for _, l := range s.listeners {
		st.Listeners = append(st.Listeners, ListenerInfo{
			Name:      l.DisplayName(),
			ID:        l.ID,
			Transport: l.Transport,
			Delivered: l.Delivered(),
		})
	}
	s.listenersMu.RUnlock()

	sort.Slice(st.Listeners, func(i, j int) bool {
		return st.Listeners[i].Name < st.Listeners[j].Name
	})
	return st
}
