package rsession

import (
	"context"
	"strconv"
	"time"

	"github.com/mediocregopher/radix.v2/redis"
	"github.com/pkg/errors"
)

// radixSession adapts github.com/mediocregopher/radix.v2/redis.Client — the
// real upstream of this project's teacher package — to NodeSession.
type radixSession struct {
	client    *redis.Client
	timeout   time.Duration
	reused    int
	piping    bool
	pipeCount int
}

// NewRadixFactory returns a Factory producing NodeSessions backed by
// radix.v2's RESP client.
func NewRadixFactory() Factory {
	return func() NodeSession { return &radixSession{} }
}

func (s *radixSession) Connect(ctx context.Context, ip string, port uint16) error {
	addr := ip + ":" + strconv.Itoa(int(port))
	var client *redis.Client
	var err error
	if s.timeout > 0 {
		client, err = redis.DialTimeout("tcp", addr, s.timeout)
	} else {
		client, err = redis.Dial("tcp", addr)
	}
	if err != nil {
		return errors.Wrapf(err, "connect %s", addr)
	}
	s.client = client
	return nil
}

func (s *radixSession) SetTimeout(d time.Duration) {
	s.timeout = d
}

func (s *radixSession) ReusedTimes() int {
	return s.reused
}

func (s *radixSession) Auth(password string) error {
	r := s.client.Cmd("AUTH", password)
	s.reused++
	if r.Err != nil {
		return errors.Wrap(r.Err, "auth")
	}
	return nil
}

func (s *radixSession) SetKeepalive(idle time.Duration, poolSize int) error {
	// radix.v2's Client has no direct keepalive knob; this is honored by the
	// owning pool (see package pool), which times connections out of its
	// idle reap and bounds outstanding sessions per poolSize.
	return nil
}

func (s *radixSession) ReadOnly() error {
	r := s.client.Cmd("READONLY")
	s.reused++
	if r.Err != nil {
		return errors.Wrap(r.Err, "readonly")
	}
	return nil
}

func (s *radixSession) Asking() error {
	r := s.client.Cmd("ASKING")
	s.reused++
	if r.Err != nil {
		return errors.Wrap(r.Err, "asking")
	}
	return nil
}

func (s *radixSession) Do(cmd string, args ...interface{}) (interface{}, error) {
	s.reused++
	if s.piping {
		s.client.PipeAppend(cmd, args...)
		s.pipeCount++
		return nil, nil
	}
	r := s.client.Cmd(cmd, args...)
	if r.Err != nil {
		return nil, r.Err
	}
	return respValue(r), nil
}

func (s *radixSession) InitPipeline() {
	s.piping = true
	s.pipeCount = 0
}

func (s *radixSession) CommitPipeline() ([]interface{}, error) {
	s.piping = false
	results := make([]interface{}, s.pipeCount)
	for i := 0; i < s.pipeCount; i++ {
		r := s.client.PipeResp()
		if r.Err != nil {
			results[i] = r.Err
			continue
		}
		results[i] = respValue(r)
	}
	s.pipeCount = 0
	return results, nil
}

func (s *radixSession) ClusterSlots() ([]SlotRow, error) {
	r := s.client.Cmd("CLUSTER", "SLOTS")
	s.reused++
	if r.Err != nil {
		return nil, errors.Wrap(r.Err, "cluster slots")
	}
	elems, err := r.Array()
	if err != nil {
		return nil, errors.Wrap(err, "cluster slots: not an array")
	}
	rows := make([]SlotRow, 0, len(elems))
	for _, el := range elems {
		row, err := parseSlotRow(el)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseSlotRow(el *redis.Resp) (SlotRow, error) {
	fields, err := el.Array()
	if err != nil {
		return SlotRow{}, errors.Wrap(err, "cluster slots: malformed row")
	}
	if len(fields) < 3 {
		return SlotRow{}, errors.New("cluster slots: row too short")
	}
	start, err := fields[0].Int()
	if err != nil {
		return SlotRow{}, errors.Wrap(err, "cluster slots: start")
	}
	end, err := fields[1].Int()
	if err != nil {
		return SlotRow{}, errors.Wrap(err, "cluster slots: end")
	}
	row := SlotRow{Start: start, End: end}
	for _, nodeElem := range fields[2:] {
		nodeFields, err := nodeElem.Array()
		if err != nil || len(nodeFields) < 2 {
			return SlotRow{}, errors.New("cluster slots: malformed node entry")
		}
		ip, err := nodeFields[0].Str()
		if err != nil {
			return SlotRow{}, errors.Wrap(err, "cluster slots: node ip")
		}
		port, err := nodeFields[1].Int()
		if err != nil {
			return SlotRow{}, errors.Wrap(err, "cluster slots: node port")
		}
		row.Nodes = append(row.Nodes, NodeAddr{IP: ip, Port: uint16(port)})
	}
	return row, nil
}

func (s *radixSession) ClusterNodes() (string, error) {
	r := s.client.Cmd("CLUSTER", "NODES")
	s.reused++
	if r.Err != nil {
		return "", errors.Wrap(r.Err, "cluster nodes")
	}
	str, err := r.Str()
	if err != nil {
		return "", errors.Wrap(err, "cluster nodes: not a string")
	}
	return str, nil
}

func (s *radixSession) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// respValue extracts a loosely-typed Go value out of a *redis.Resp for
// callers that don't care about the precise RESP shape (the executor only
// inspects error strings; everything else is passed back to the caller
// as-is).
func respValue(r *redis.Resp) interface{} {
	if s, err := r.Str(); err == nil {
		return s
	}
	if i, err := r.Int(); err == nil {
		return i
	}
	if arr, err := r.Array(); err == nil {
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			out[i] = respValue(e)
		}
		return out
	}
	return nil
}
