package transcribe

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// restartDelay is how long LocalProvider waits before respawning a dead
// child (spec.md §4.2 "Local").
const restartDelay = 5 * time.Second

type localJobMsg struct {
	Command      string `json:"command"`
	ID           string `json:"id"`
	Path         string `json:"path,omitempty"`
	AudioDataB64 string `json:"audio_data_base64,omitempty"`
}

type localRespMsg struct {
	Ready         bool   `json:"ready,omitempty"`
	ID            string `json:"id,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Error         string `json:"error,omitempty"`
}

type localResult struct {
	text string
	err  error
}

// LocalProvider drives a long-lived external ASR process over stdio with
// newline-delimited JSON (spec.md §4.2 "Local"). Writes to the child's
// stdin are serialised through stdinMu; a single reader goroutine matches
// responses to callers by id, since ordering between jobs is not
// guaranteed.
type LocalProvider struct {
	command     string
	concurrency int
	log         zerolog.Logger

	sem chan struct{}

	mu     sync.Mutex // guards cmd/stdin swap on restart
	cmd    *exec.Cmd
	stdin  *bufio.Writer
	stdinC interface{ Close() error }

	pendingMu sync.Mutex
	pending   map[string]chan localResult

	nextID atomic.Int64
	done   chan struct{}
	closed atomic.Bool
}

// NewLocalProvider starts the child process named by command (split on
// whitespace) and begins supervising it.
func NewLocalProvider(command string, concurrency int, log zerolog.Logger) (*LocalProvider, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	p := &LocalProvider{
		command:     command,
		concurrency: concurrency,
		log:         log.With().Str("component", "local_asr").Logger(),
		sem:         make(chan struct{}, concurrency),
		pending:     make(map[string]chan localResult),
		done:        make(chan struct{}),
	}
	if err := p.spawn(); err != nil {
		return nil, err
	}
	go p.supervise()
	return p, nil
}

func (p *LocalProvider) spawn() error {
	args := strings.Fields(p.command)
	if len(args) == 0 {
		return fmt.Errorf("transcribe: empty LOCAL_ASR_COMMAND")
	}
	cmd := exec.Command(args[0], args[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transcribe: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcribe: stdout pipe: %w", err)
	}
	cmd.Stderr = newStderrLogger(p.log)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transcribe: start local ASR child: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	// Block until the child announces readiness.
	var ready bool
	for scanner.Scan() {
		var msg localRespMsg
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.Ready {
			ready = true
			break
		}
	}
	if !ready {
		cmd.Process.Kill()
		return fmt.Errorf("transcribe: local ASR child exited before announcing ready")
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = bufio.NewWriter(stdin)
	p.stdinC = stdin
	p.mu.Unlock()

	go p.readLoop(scanner, cmd)
	p.log.Info().Str("command", p.command).Msg("local ASR child ready")
	return nil
}

func (p *LocalProvider) readLoop(scanner *bufio.Scanner, cmd *exec.Cmd) {
	for scanner.Scan() {
		var msg localRespMsg
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			p.log.Warn().Err(err).Str("line", scanner.Text()).Msg("local ASR child sent malformed line")
			continue
		}
		if msg.ID == "" {
			continue
		}
		p.pendingMu.Lock()
		ch, ok := p.pending[msg.ID]
		delete(p.pending, msg.ID)
		p.pendingMu.Unlock()
		if !ok {
			continue // nobody waiting, likely a timed-out caller; drop
		}
		if msg.Error != "" {
			ch <- localResult{err: fmt.Errorf("local ASR: %s", msg.Error)}
		} else {
			ch <- localResult{text: msg.Transcription}
		}
	}
	cmd.Wait()
}

// supervise restarts the child after restartDelay whenever it dies, until
// Close is called.
func (p *LocalProvider) supervise() {
	for {
		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Wait()
		}
		if p.closed.Load() {
			return
		}
		p.log.Warn().Dur("restart_delay", restartDelay).Msg("local ASR child died, restarting")
		p.failAllPending(fmt.Errorf("local ASR child died"))
		select {
		case <-p.done:
			return
		case <-time.After(restartDelay):
		}
		if err := p.spawn(); err != nil {
			p.log.Error().Err(err).Msg("failed to restart local ASR child")
		}
	}
}

func (p *LocalProvider) failAllPending(err error) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	for id, ch := range p.pending {
		ch <- localResult{err: err}
		delete(p.pending, id)
	}
}

func (p *LocalProvider) Transcribe(ctx context.Context, ref AudioRef) (string, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-p.sem }()

	id := fmt.Sprintf("%d", p.nextID.Add(1))
	resultCh := make(chan localResult, 1)
	p.pendingMu.Lock()
	p.pending[id] = resultCh
	p.pendingMu.Unlock()

	job := localJobMsg{Command: "transcribe", ID: id}
	if ref.Bytes != nil {
		job.AudioDataB64 = base64.StdEncoding.EncodeToString(ref.Bytes)
	} else {
		job.Path = ref.Path
	}
	payload, err := json.Marshal(job)
	if err != nil {
		p.unregister(id)
		return "", fmt.Errorf("transcribe: marshal job: %w", err)
	}

	p.mu.Lock()
	_, werr := p.stdin.Write(append(payload, '\n'))
	if werr == nil {
		werr = p.stdin.Flush()
	}
	p.mu.Unlock()
	if werr != nil {
		p.unregister(id)
		return "", fmt.Errorf("transcribe: write to local ASR child: %w", werr)
	}

	select {
	case res := <-resultCh:
		return res.text, res.err
	case <-ctx.Done():
		p.unregister(id)
		return "", ctx.Err()
	}
}

func (p *LocalProvider) unregister(id string) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

func (p *LocalProvider) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.done)
	}
	p.mu.Lock()
	cmd := p.cmd
	stdin := p.stdinC
	p.mu.Unlock()
	if stdin != nil {
		stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// stderrLogger forwards a child process's stderr to the structured logger
// a line at a time.
type stderrLogger struct {
	log zerolog.Logger
}

func newStderrLogger(log zerolog.Logger) *stderrLogger {
	return &stderrLogger{log: log}
}

func (s *stderrLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			s.log.Debug().Str("stderr", line).Msg("local ASR child")
		}
	}
	return len(p), nil
}
