// Package usp holds the already-parsed USP message and record shapes the
// broker core operates on. The protocol-buffer wire codec that produces
// these values lives outside this module; this package only
// defines the Go-side contract the core depends on.
package usp

// MessageType identifies the kind of payload carried by a Message.
type MessageType string

const (
	MsgRegister           MessageType = "Register"
	MsgRegisterResp       MessageType = "RegisterResp"
	MsgDeregister         MessageType = "Deregister"
	MsgDeregisterResp     MessageType = "DeregisterResp"
	MsgGetSupportedDM     MessageType = "GetSupportedDM"
	MsgGetSupportedDMResp MessageType = "GetSupportedDMResp"
	MsgGet                MessageType = "Get"
	MsgGetResp            MessageType = "GetResp"
	MsgSet                MessageType = "Set"
	MsgSetResp            MessageType = "SetResp"
	MsgAdd                MessageType = "Add"
	MsgAddResp            MessageType = "AddResp"
	MsgDelete             MessageType = "Delete"
	MsgDeleteResp         MessageType = "DeleteResp"
	MsgOperate            MessageType = "Operate"
	MsgOperateResp        MessageType = "OperateResp"
	MsgGetInstances       MessageType = "GetInstances"
	MsgGetInstancesResp   MessageType = "GetInstancesResp"
	MsgNotify             MessageType = "Notify"
	MsgNotifyResp         MessageType = "NotifyResp"
	MsgError              MessageType = "Error"
)

// Access describes a parameter's or object's read/write access.
type Access string

const (
	AccessReadOnly  Access = "RO"
	AccessReadWrite Access = "RW"
)

// ValueType is the internal type tag a GSDM value-type enum is mapped to.
type ValueType string

const (
	TypeBase64   ValueType = "base64"
	TypeBool     ValueType = "bool"
	TypeDateTime ValueType = "datetime"
	TypeDecimal  ValueType = "decimal"
	TypeHexBin   ValueType = "hexbin"
	TypeInt      ValueType = "int"
	TypeLong     ValueType = "long"
	TypeUint     ValueType = "uint"
	TypeUlong    ValueType = "ulong"
	TypeString   ValueType = "string" // default when the GSDM enum is unrecognised
)

// CommandType distinguishes synchronous from asynchronous USP commands.
type CommandType string

const (
	CommandSync  CommandType = "sync"
	CommandAsync CommandType = "async"
)

// NotifyType enumerates the kinds of Notify payload.
type NotifyType string

const (
	NotifyValueChange       NotifyType = "value_change"
	NotifyObjectCreation    NotifyType = "obj_creation"
	NotifyObjectDeletion    NotifyType = "obj_deletion"
	NotifyOperationComplete NotifyType = "oper_complete"
	NotifyEvent             NotifyType = "event"
	NotifyOnBoardRequest    NotifyType = "on_board_req"
)

// Permission is a bitmask of originator-role permissions checked by PassThru.
type Permission uint8

const (
	PermitGet Permission = 1 << iota
	PermitSet
	PermitAdd
	PermitDelete
	PermitOperate
	PermitSubscribe
)

// FullDepth means "no recursion limit" for a Get's object traversal.
const FullDepth = -1
