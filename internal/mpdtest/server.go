// Package mpdtest runs an in-process daemon speaking enough of the MPD text
// protocol to exercise real clients in tests.
package mpdtest

import (
	"bufio"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Song is one database entry.
type Song struct {
	File         string
	Tags         map[string]string
	Duration     float64
	Range        string
	LastModified string
}

type idler struct {
	subsystems []string
	ch         chan string
}

func (i *idler) wants(subsystem string) bool {
	if len(i.subsystems) == 0 {
		return true
	}
	for _, s := range i.subsystems {
		if s == subsystem {
			return true
		}
	}
	return false
}

// Server is a fake daemon bound to a loopback port.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	songs    []Song
	queue    []int
	queueIDs []int
	nextID   int
	state    string
	current  int
	volume   int
	random   bool
	repeat   bool
	single   bool
	consume  bool
	version  int
	updateID int
	dbUpdate int64
	password string
	failing  map[string]bool
	truncate map[string]bool
	requests []string
	idlers   map[*idler]struct{}
	conns    map[net.Conn]struct{}
	closed   bool
	connWG   sync.WaitGroup
}

// NewServer starts a fake daemon holding songs as its database. It is
// stopped when the test ends.
func NewServer(t testing.TB, songs ...Song) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mpdtest listen: %v", err)
	}
	s := &Server{
		ln:       ln,
		songs:    songs,
		nextID:   1,
		state:    "stop",
		current:  -1,
		volume:   50,
		version:  1,
		dbUpdate: 1700000000,
		failing:  map[string]bool{},
		truncate: map[string]bool{},
		idlers:   map[*idler]struct{}{},
		conns:    map[net.Conn]struct{}{},
	}
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Host returns the listen host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

// Port returns the listen port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	_ = s.ln.Close()
	s.connWG.Wait()
}

// Enqueue appends database songs, by file, to the play queue.
func (s *Server) Enqueue(files ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, file := range files {
		for i, song := range s.songs {
			if song.File == file {
				s.queue = append(s.queue, i)
				s.queueIDs = append(s.queueIDs, s.nextID)
				s.nextID++
			}
		}
	}
	s.version++
}

// SetState forces the raw player state string, e.g. "play" or "bogus".
func (s *Server) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if (state == "play" || state == "pause") && s.current < 0 && len(s.queue) > 0 {
		s.current = 0
	}
}

// SetPassword requires clients to authenticate.
func (s *Server) SetPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
}

// SetUpdateID reports a database update job in progress.
func (s *Server) SetUpdateID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateID = id
}

// Fail makes every subsequent cmd return an ACK.
func (s *Server) Fail(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[cmd] = true
}

// TruncateNext makes the next cmd write half its records and hang up.
func (s *Server) TruncateNext(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate[cmd] = true
}

// Requests returns every command name received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many times cmd was received.
func (s *Server) Count(cmd string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == cmd {
			n++
		}
	}
	return n
}

// Volume returns the current mixer volume.
func (s *Server) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Notify wakes idle clients waiting on subsystem.
func (s *Server) Notify(subsystem string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyLocked(subsystem)
}

func (s *Server) notifyLocked(subsystem string) {
	for i := range s.idlers {
		if !i.wants(subsystem) {
			continue
		}
		select {
		case i.ch <- subsystem:
		default:
		}
	}
}

func (s *Server) accept() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.connWG.Add(1)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

type session struct {
	w      *bufio.Writer
	authed bool
}

func (s *Server) serve(conn net.Conn) {
	defer s.connWG.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()

	sess := &session{w: bufio.NewWriter(conn)}
	s.mu.Lock()
	sess.authed = s.password == ""
	s.mu.Unlock()

	fmt.Fprint(sess.w, "OK MPD 0.23.5\n")
	if sess.w.Flush() != nil {
		return
	}

	for line := range lines {
		name, args := tokenize(line)
		if name == "" {
			continue
		}
		s.mu.Lock()
		s.requests = append(s.requests, name)
		s.mu.Unlock()

		switch name {
		case "close":
			return
		case "noidle":
			continue
		case "idle":
			if !s.idle(sess, args, lines) {
				return
			}
			continue
		}
		if !s.handle(sess, name, args) {
			_ = sess.w.Flush()
			return
		}
		if sess.w.Flush() != nil {
			return
		}
	}
}

func (s *Server) idle(sess *session, subsystems []string, lines <-chan string) bool {
	i := &idler{subsystems: subsystems, ch: make(chan string, 1)}
	s.mu.Lock()
	s.idlers[i] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.idlers, i)
		s.mu.Unlock()
	}()

	select {
	case subsystem := <-i.ch:
		fmt.Fprintf(sess.w, "changed: %s\nOK\n", subsystem)
	case line, ok := <-lines:
		if !ok {
			return false
		}
		if name, _ := tokenize(line); name != "" {
			s.mu.Lock()
			s.requests = append(s.requests, name)
			s.mu.Unlock()
		}
		fmt.Fprint(sess.w, "OK\n")
	}
	return sess.w.Flush() == nil
}

// handle runs one command; false means hang up.
func (s *Server) handle(sess *session, name string, args []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "password" {
		if len(args) == 1 && args[0] == s.password {
			sess.authed = true
			fmt.Fprint(sess.w, "OK\n")
		} else {
			ack(sess.w, 3, name, "incorrect password")
		}
		return true
	}
	if !sess.authed {
		ack(sess.w, 4, name, "you don't have permission for \""+name+"\"")
		return true
	}
	if s.failing[name] {
		ack(sess.w, 5, name, "command failed")
		return true
	}
	truncate := s.truncate[name]
	delete(s.truncate, name)

	switch name {
	case "ping":
	case "status":
		s.writeStatus(sess.w)
	case "stats":
		s.writeStats(sess.w)
	case "currentsong":
		if s.current >= 0 && s.current < len(s.queue) {
			s.writeSong(sess.w, s.queue[s.current], s.current, s.queueIDs[s.current])
		}
	case "playlistinfo":
		positions := make([]int, len(s.queue))
		for i := range s.queue {
			positions[i] = i
		}
		if truncate {
			s.writeQueue(sess.w, positions[:len(positions)/2])
			return false
		}
		s.writeQueue(sess.w, positions)
	case "find", "search":
		matches, ok := s.match(args, name == "find")
		if !ok {
			ack(sess.w, 2, name, "incorrect number of arguments")
			return true
		}
		if truncate {
			s.writeDB(sess.w, matches[:len(matches)/2], false)
			return false
		}
		s.writeDB(sess.w, matches, false)
	case "listallinfo":
		all := make([]int, len(s.songs))
		for i := range s.songs {
			all[i] = i
		}
		s.writeDB(sess.w, all, true)
	case "play":
		if len(s.queue) > 0 {
			pos := s.current
			if len(args) == 1 {
				p, err := strconv.Atoi(args[0])
				if err != nil || p < 0 || p >= len(s.queue) {
					ack(sess.w, 2, name, "Bad song index")
					return true
				}
				pos = p
			}
			if pos < 0 {
				pos = 0
			}
			s.current = pos
			s.state = "play"
			s.notifyLocked("player")
		}
	case "stop":
		s.state = "stop"
		s.notifyLocked("player")
	case "pause":
		switch {
		case len(args) == 0 && s.state == "play":
			s.state = "pause"
		case len(args) == 0 && s.state == "pause":
			s.state = "play"
		case len(args) == 1 && args[0] == "1" && s.state == "play":
			s.state = "pause"
		case len(args) == 1 && args[0] == "0" && s.state == "pause":
			s.state = "play"
		}
		s.notifyLocked("player")
	case "next":
		if s.current >= 0 {
			if s.current+1 < len(s.queue) {
				s.current++
			} else {
				s.state = "stop"
				s.current = -1
			}
			s.notifyLocked("player")
		}
	case "previous":
		if s.current > 0 {
			s.current--
			s.notifyLocked("player")
		}
	case "setvol":
		v, err := intArg(args)
		if err != nil || v < 0 || v > 100 {
			ack(sess.w, 2, name, "Invalid volume value")
			return true
		}
		s.volume = v
		s.notifyLocked("mixer")
	case "random", "repeat", "single", "consume":
		v, err := intArg(args)
		if err != nil || (v != 0 && v != 1) {
			ack(sess.w, 2, name, "Boolean (0/1) expected")
			return true
		}
		on := v == 1
		switch name {
		case "random":
			s.random = on
		case "repeat":
			s.repeat = on
		case "single":
			s.single = on
		case "consume":
			s.consume = on
		}
		s.notifyLocked("options")
	default:
		ack(sess.w, 5, name, "unknown command \""+name+"\"")
		return true
	}
	fmt.Fprint(sess.w, "OK\n")
	return true
}

func (s *Server) writeStatus(w *bufio.Writer) {
	fmt.Fprintf(w, "volume: %d\n", s.volume)
	fmt.Fprintf(w, "repeat: %d\n", btoi(s.repeat))
	fmt.Fprintf(w, "random: %d\n", btoi(s.random))
	fmt.Fprintf(w, "single: %d\n", btoi(s.single))
	fmt.Fprintf(w, "consume: %d\n", btoi(s.consume))
	fmt.Fprintf(w, "playlist: %d\n", s.version)
	fmt.Fprintf(w, "playlistlength: %d\n", len(s.queue))
	fmt.Fprint(w, "mixrampdb: -17.000000\n")
	fmt.Fprint(w, "mixrampdelay: 2.500000\n")
	fmt.Fprint(w, "xfade: 3\n")
	fmt.Fprintf(w, "state: %s\n", s.state)
	if s.current >= 0 && s.current < len(s.queue) {
		song := s.songs[s.queue[s.current]]
		fmt.Fprintf(w, "song: %d\n", s.current)
		fmt.Fprintf(w, "songid: %d\n", s.queueIDs[s.current])
		if s.state == "play" || s.state == "pause" {
			fmt.Fprintf(w, "time: 12:%d\n", int(song.Duration+0.5))
			fmt.Fprint(w, "elapsed: 12.345\n")
			fmt.Fprintf(w, "duration: %.3f\n", song.Duration)
			fmt.Fprint(w, "bitrate: 320\n")
			fmt.Fprint(w, "audio: 44100:16:2\n")
		}
		if s.current+1 < len(s.queue) {
			fmt.Fprintf(w, "nextsong: %d\n", s.current+1)
			fmt.Fprintf(w, "nextsongid: %d\n", s.queueIDs[s.current+1])
		}
	}
	if s.updateID > 0 {
		fmt.Fprintf(w, "updating_db: %d\n", s.updateID)
	}
}

func (s *Server) writeStats(w *bufio.Writer) {
	artists := map[string]bool{}
	albums := map[string]bool{}
	var dbPlay float64
	for _, song := range s.songs {
		if a := song.Tags["Artist"]; a != "" {
			artists[a] = true
		}
		if a := song.Tags["Album"]; a != "" {
			albums[a] = true
		}
		dbPlay += song.Duration
	}
	fmt.Fprintf(w, "uptime: %d\n", 4242)
	fmt.Fprintf(w, "playtime: %d\n", 600)
	fmt.Fprintf(w, "artists: %d\n", len(artists))
	fmt.Fprintf(w, "albums: %d\n", len(albums))
	fmt.Fprintf(w, "songs: %d\n", len(s.songs))
	fmt.Fprintf(w, "db_playtime: %d\n", int64(dbPlay))
	fmt.Fprintf(w, "db_update: %d\n", s.dbUpdate)
}

func (s *Server) writeQueue(w *bufio.Writer, positions []int) {
	for _, pos := range positions {
		s.writeSong(w, s.queue[pos], pos, s.queueIDs[pos])
	}
}

func (s *Server) writeDB(w *bufio.Writer, indexes []int, withDirs bool) {
	seen := map[string]bool{}
	for _, idx := range indexes {
		song := s.songs[idx]
		if withDirs {
			if dir, _, ok := strings.Cut(song.File, "/"); ok && !seen[dir] {
				seen[dir] = true
				fmt.Fprintf(w, "directory: %s\n", dir)
				fmt.Fprint(w, "Last-Modified: 2023-11-14T22:13:20Z\n")
			}
		}
		s.writeSong(w, idx, -1, -1)
	}
}

func (s *Server) writeSong(w *bufio.Writer, idx int, pos int, id int) {
	song := s.songs[idx]
	fmt.Fprintf(w, "file: %s\n", song.File)
	if song.LastModified != "" {
		fmt.Fprintf(w, "Last-Modified: %s\n", song.LastModified)
	}
	keys := make([]string, 0, len(song.Tags))
	for k := range song.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, song.Tags[k])
	}
	if song.Range != "" {
		fmt.Fprintf(w, "Range: %s\n", song.Range)
	}
	if song.Duration > 0 {
		fmt.Fprintf(w, "Time: %d\n", int(song.Duration+0.5))
		fmt.Fprintf(w, "duration: %.3f\n", song.Duration)
	}
	if pos >= 0 {
		fmt.Fprintf(w, "Pos: %d\n", pos)
		fmt.Fprintf(w, "Id: %d\n", id)
	}
}

// match applies (tag, value) pairs. exact compares case-sensitively for
// equality, otherwise a case-insensitive substring is enough.
func (s *Server) match(args []string, exact bool) ([]int, bool) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, false
	}
	out := []int{}
	for idx, song := range s.songs {
		ok := true
		for i := 0; i < len(args); i += 2 {
			if !songMatches(song, args[i], args[i+1], exact) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, idx)
		}
	}
	return out, true
}

func songMatches(song Song, tag string, value string, exact bool) bool {
	cmp := func(v string) bool {
		if exact {
			return v == value
		}
		return strings.Contains(strings.ToLower(v), strings.ToLower(value))
	}
	switch strings.ToLower(tag) {
	case "any":
		if cmp(song.File) {
			return true
		}
		for _, v := range song.Tags {
			if cmp(v) {
				return true
			}
		}
		return false
	case "file":
		return cmp(song.File)
	}
	for k, v := range song.Tags {
		if strings.EqualFold(k, tag) {
			return cmp(v)
		}
	}
	return false
}

func ack(w *bufio.Writer, code int, cmd string, msg string) {
	fmt.Fprintf(w, "ACK [%d@0] {%s} %s\n", code, cmd, msg)
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one argument")
	}
	return strconv.Atoi(args[0])
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// tokenize splits a command line into its name and arguments, honouring
// double quotes and backslash escapes.
func tokenize(line string) (string, []string) {
	var tokens []string
	var cur strings.Builder
	inQuote, escaped, have := false, false, false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuote:
			escaped = true
		case r == '"':
			inQuote = !inQuote
			have = true
		case r == ' ' && !inQuote:
			if have {
				tokens = append(tokens, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		tokens = append(tokens, cur.String())
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}
