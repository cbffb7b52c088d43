package port_reader

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SmlReader pumps the raw byte stream of an SML meter into a sink.
type SmlReader struct {
	port       string
	baudrate   uint
	serialPort io.ReadWriteCloser
	portMutex  sync.Mutex
	stopSignal atomic.Bool

	// Receives every byte read, in order.
	sink io.Writer

	inactivityTimeout time.Duration
	lastActivity      atomic.Int64
	stalled           atomic.Bool

	maxErrors  int
	retryDelay time.Duration
	logger     *logrus.Entry
}
