package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// process supervises one decoder subprocess.
//
//	startProcess → read stdout → Close → <-Done()
//
// stdout is an os.Pipe owned by the caller so that Wait never closes it
// while frames are still buffered. stderr is drained into logBuf.
type process struct {
	log    *zap.Logger
	logBuf *logBuffer
	grace  time.Duration

	cmd    *exec.Cmd
	pid    int
	stdout *os.File

	done      chan struct{}
	closeOnce sync.Once
	exitErr   error // valid after done is closed
}

func startProcess(log *zap.Logger, logBuf *logBuffer, argv []string, grace time.Duration) (*process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		_ = outR.Close()
		_ = outW.Close()
		_ = errR.Close()
		_ = errW.Close()
		return nil, err
	}
	// the child holds its own copies; EOF on our ends means it exited
	_ = outW.Close()
	_ = errW.Close()

	p := &process{
		log:    log,
		logBuf: logBuf,
		grace:  grace,
		cmd:    cmd,
		pid:    cmd.Process.Pid,
		stdout: outR,
		done:   make(chan struct{}),
	}
	p.log.Debug("decoder started", zap.Int("cmd_pid", p.pid))
	go p.supervise(errR)
	return p, nil
}

// supervise drains stderr until the child closes it, then reaps the child.
func (p *process) supervise(stderr *os.File) {
	sc := bufio.NewScanner(stderr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		p.logBuf.Append(line)
		p.log.Debug("ffmpeg", zap.String("line", line))
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.log.Warn("stderr scanner failure", zap.Error(err))
	}
	_ = stderr.Close()

	err := p.cmd.Wait()
	var eerr *exec.ExitError
	switch {
	case err == nil:
		p.log.Debug("decoder exited cleanly", zap.Int("cmd_pid", p.pid))
	case errors.As(err, &eerr):
		p.log.Debug("decoder exited", zap.Int("cmd_pid", p.pid), zap.String("status", eerr.ProcessState.String()))
	default:
		p.log.Warn("failed to wait for decoder", zap.Int("cmd_pid", p.pid), zap.Error(err))
	}
	p.exitErr = err
	close(p.done)
}

func (p *process) Done() <-chan struct{} { return p.done }

// Close terminates the process group: SIGTERM, then SIGKILL once the grace
// period expires. It returns after the child is reaped or the kill grace also
// expires. Idempotent.
func (p *process) Close() {
	p.closeOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if err := signalGroup(p.pid, syscall.SIGTERM); err != nil {
			p.log.Debug("SIGTERM failed", zap.Int("cmd_pid", p.pid), zap.Error(err))
		}

		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return
		case <-timer.C:
		}

		p.log.Warn("grace timeout expired; sending SIGKILL", zap.Int("cmd_pid", p.pid))
		if err := signalGroup(p.pid, syscall.SIGKILL); err != nil {
			p.log.Error("SIGKILL failed", zap.Int("cmd_pid", p.pid), zap.Error(err))
		}

		timer.Reset(p.grace)
		select {
		case <-p.done:
		case <-timer.C:
			p.log.Error("decoder not reaped after SIGKILL", zap.Int("cmd_pid", p.pid))
		}
	})
}
