package port_reader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"
)

const readBufferSize = 256

// Initialize a new SmlReader. A zero inactivityTimeout disables the watchdog.
func NewSmlReader(port string, baudrate uint, sink io.Writer, inactivityTimeout time.Duration, logger *logrus.Entry) *SmlReader {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	reader := &SmlReader{
		port:              port,
		baudrate:          baudrate,
		sink:              sink,
		inactivityTimeout: inactivityTimeout,
		maxErrors:         10,
		retryDelay:        time.Second,
		logger:            logger.WithField("component", "port_reader"),
	}
	reader.lastActivity.Store(time.Now().UnixNano())
	return reader
}

// Start reading the serial port in a goroutine. handleError is called once
// when the port cannot be opened or too many consecutive reads failed.
func (p *SmlReader) StartReading(handleError func(error)) {
	p.stopSignal.Store(false)

	go func() {
		if err := p.connect(); err != nil {
			handleError(err)
			return
		}
		defer p.disconnect()

		p.portMutex.Lock()
		port := p.serialPort
		p.portMutex.Unlock()

		if err := p.readLoop(port); err != nil {
			handleError(err)
		}
	}()
}

func (p *SmlReader) StopReading() {
	p.stopSignal.Store(true)
	p.disconnect()
}

// MarkActivity records that a transmission start was seen.
func (p *SmlReader) MarkActivity() {
	p.lastActivity.Store(time.Now().UnixNano())
	if p.stalled.Swap(false) {
		p.logger.Info("Meter transmissions resumed")
	}
}

func (p *SmlReader) LastActivity() time.Time {
	return time.Unix(0, p.lastActivity.Load())
}

// Watch logs a warning whenever no transmission started within the
// inactivity timeout. Blocks until ctx is done.
func (p *SmlReader) Watch(ctx context.Context) {
	if p.inactivityTimeout <= 0 {
		return
	}
	interval := p.inactivityTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.checkInactivity(now)
		}
	}
}

// checkInactivity reports whether the meter is considered stalled at now.
// The warning is logged once per stall.
func (p *SmlReader) checkInactivity(now time.Time) bool {
	idle := now.Sub(p.LastActivity())
	if idle < p.inactivityTimeout {
		return false
	}
	if !p.stalled.Swap(true) {
		p.logger.WithField("idle", idle.Round(time.Second)).Warn("No meter transmission received")
	}
	return true
}

func (p *SmlReader) readLoop(r io.Reader) error {
	// Tolerance before we report error.
	consecutiveErrors := 0
	var lastError error
	buf := make([]byte, readBufferSize)

	for consecutiveErrors < p.maxErrors {
		if p.stopSignal.Load() {
			p.logger.Info("Stop signal received, disconnecting")
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			p.sink.Write(buf[:n])
			consecutiveErrors = 0
		}
		if err != nil {
			if p.stopSignal.Load() {
				return nil
			}
			consecutiveErrors++
			lastError = err
			p.logger.Warnf("Error reading serial port (%d/%d): %v", consecutiveErrors, p.maxErrors, err)
			time.Sleep(p.retryDelay)
		}
	}

	p.logger.Errorf("Too many consecutive errors (%d), stopping reader: %v", p.maxErrors, lastError)
	return fmt.Errorf("reading %s: %w", p.port, lastError)
}

// Open the serial port, 8N1.
func (p *SmlReader) connect() error {
	options := serial.OpenOptions{
		PortName:        p.port,
		BaudRate:        p.baudrate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	port, err := serial.Open(options)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	p.portMutex.Lock()
	p.serialPort = port
	p.portMutex.Unlock()
	p.logger.Infof("Connected to meter on %s at %d baud", p.port, p.baudrate)
	return nil
}

func (p *SmlReader) disconnect() {
	p.portMutex.Lock()
	defer p.portMutex.Unlock()
	if p.serialPort != nil {
		p.serialPort.Close()
		p.serialPort = nil
		p.logger.Info("Disconnected from meter")
	}
}
