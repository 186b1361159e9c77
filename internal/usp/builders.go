package usp

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IDGenerator produces Broker-originated msg_ids of the form
// "BROKER-<monotonic counter>-<unix-seconds>", guaranteed unique within
// the process lifetime. The literal "BROKER" marker lets any endpoint
// recognise a Broker-minted id on sight; restarting the counter from
// zero on every process start is intentional — stale responses from a
// previous process must never be accepted as live.
type IDGenerator struct {
	counter uint64
	now     func() time.Time // overridable in tests
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NextMsgID returns the next Broker msg_id.
func (g *IDGenerator) NextMsgID() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("BROKER-%d-%d", n, g.now().Unix())
}

// NextSubscriptionID returns a Broker-created subscription id carrying
// the "BROKER" marker, in "%X-%X-BROKER" hex form, so reconciliation
// (SubscriptionBridge) can later recognise rows this Broker created.
func (g *IDGenerator) NextSubscriptionID() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%X-%X-BROKER", n, g.now().Unix())
}

// IsBrokerMarked reports whether a subscription id or msg_id was minted
// by a Broker (carries the "BROKER" marker), used during reconciliation
// to tell apart Broker-owned rows from externally-created ones.
func IsBrokerMarked(id string) bool {
	const marker = "BROKER"
	for i := 0; i+len(marker) <= len(id); i++ {
		if id[i:i+len(marker)] == marker {
			return true
		}
	}
	return false
}

// Builders constructs the Broker's own outgoing messages.
// It is a thin, stateless set of constructors over the wire types; the
// only state is the shared IDGenerator.
type Builders struct {
	IDs *IDGenerator
}

func NewBuilders(ids *IDGenerator) *Builders {
	return &Builders{IDs: ids}
}

func (b *Builders) header(msgType MessageType) *Header {
	return &Header{MsgID: b.IDs.NextMsgID(), MsgType: msgType}
}

func (b *Builders) GetSupportedDM(objPaths []string) *Message {
	return &Message{
		Header: b.header(MsgGetSupportedDM),
		GetSupportedDM: &GetSupportedDM{
			ObjPaths:       objPaths,
			ReturnCommands: true,
			ReturnEvents:   true,
			ReturnParams:   true,
		},
	}
}

func (b *Builders) Get(paths []string, maxDepth int) *Message {
	return &Message{
		Header: b.header(MsgGet),
		Get:    &Get{Paths: paths, MaxDepth: maxDepth},
	}
}

func (b *Builders) Set(allowPartial bool, updates []UpdateObj) *Message {
	return &Message{
		Header: b.header(MsgSet),
		Set:    &Set{AllowPartial: allowPartial, UpdateObjs: updates},
	}
}

func (b *Builders) Add(allowPartial bool, creates []CreateObj) *Message {
	return &Message{
		Header: b.header(MsgAdd),
		Add:    &Add{AllowPartial: allowPartial, CreateObjs: creates},
	}
}

func (b *Builders) Delete(allowPartial bool, objPaths []string) *Message {
	return &Message{
		Header: b.header(MsgDelete),
		Delete: &Delete{AllowPartial: allowPartial, ObjPaths: objPaths},
	}
}

func (b *Builders) Operate(command, commandKey string, sendResp bool, inputArgs map[string]string) *Message {
	return &Message{
		Header: b.header(MsgOperate),
		Operate: &Operate{
			Command:    command,
			CommandKey: commandKey,
			SendResp:   sendResp,
			InputArgs:  inputArgs,
		},
	}
}

func (b *Builders) GetInstances(objPaths []string, firstLevelOnly bool) *Message {
	return &Message{
		Header:       b.header(MsgGetInstances),
		GetInstances: &GetInstances{ObjPaths: objPaths, FirstLevelOnly: firstLevelOnly},
	}
}

func (b *Builders) RegisterResp(results []RegisteredPathResult) *Message {
	return &Message{
		Header:       b.header(MsgRegisterResp),
		RegisterResp: &RegisterResp{RegisteredPathResults: results},
	}
}

func (b *Builders) DeregisterResp(results []DeregisteredPathResult) *Message {
	return &Message{
		Header:         b.header(MsgDeregisterResp),
		DeregisterResp: &DeregisterResp{DeregisteredPathResults: results},
	}
}

func (b *Builders) ErrorMsg(fault *Fault) *Message {
	return &Message{
		Header: b.header(MsgError),
		Error:  fault.ToUSPError(),
	}
}

// ReplyTo builds a message whose header msg_id matches req's, for
// responses that must correlate back to the original requester — used
// only by the generic (non-passthru) response path; PassThru rewrites
// ids itself.
func ReplyTo(req *Message, msgType MessageType) *Header {
	return &Header{MsgID: req.MsgID(), MsgType: msgType}
}
