package usp

// Header carries the routing envelope for every USP message exchanged
// between Broker and Service/Controller.
type Header struct {
	MsgID   string      `json:"msg_id"`
	MsgType MessageType `json:"msg_type"`
}

// Message is the parsed payload the core works with; exactly one of the
// typed fields below is populated, matching usp.MsgType.
type Message struct {
	Header *Header `json:"header"`

	Register       *Register       `json:"register,omitempty"`
	RegisterResp   *RegisterResp   `json:"register_resp,omitempty"`
	Deregister     *Deregister     `json:"deregister,omitempty"`
	DeregisterResp *DeregisterResp `json:"deregister_resp,omitempty"`

	GetSupportedDM     *GetSupportedDM     `json:"get_supported_dm,omitempty"`
	GetSupportedDMResp *GetSupportedDMResp `json:"get_supported_dm_resp,omitempty"`

	Get         *Get         `json:"get,omitempty"`
	GetResp     *GetResp     `json:"get_resp,omitempty"`
	Set         *Set         `json:"set,omitempty"`
	SetResp     *SetResp     `json:"set_resp,omitempty"`
	Add         *Add         `json:"add,omitempty"`
	AddResp     *AddResp     `json:"add_resp,omitempty"`
	Delete      *Delete      `json:"delete,omitempty"`
	DeleteResp  *DeleteResp  `json:"delete_resp,omitempty"`
	Operate     *Operate     `json:"operate,omitempty"`
	OperateResp *OperateResp `json:"operate_resp,omitempty"`

	GetInstances     *GetInstances     `json:"get_instances,omitempty"`
	GetInstancesResp *GetInstancesResp `json:"get_instances_resp,omitempty"`

	Notify     *Notify     `json:"notify,omitempty"`
	NotifyResp *NotifyResp `json:"notify_resp,omitempty"`

	Error *Error `json:"error,omitempty"`
}

// Type returns the message's declared type, or "" if no header is set.
func (m *Message) Type() MessageType {
	if m == nil || m.Header == nil {
		return ""
	}
	return m.Header.MsgType
}

// MsgID returns the message's correlation id, or "" if no header is set.
func (m *Message) MsgID() string {
	if m == nil || m.Header == nil {
		return ""
	}
	return m.Header.MsgID
}

// Record wraps a Message with the endpoint identifiers the MTP layer
// needs for delivery; it stands in for the protobuf UspRecord the real
// wire codec produces (that codec lives outside this module; the mtp
// package's TCP transport encodes Records as JSON).
type Record struct {
	FromID  string   `json:"from_id"`
	ToID    string   `json:"to_id"`
	Message *Message `json:"message"`
}

// --- Register / Deregister ---------------------------------------------

type Register struct {
	AllowPartial bool           `json:"allow_partial"`
	RegPaths     []RegisterPath `json:"reg_paths"`
}

type RegisterPath struct {
	Path string `json:"path"`
}

type RegisterResp struct {
	RegisteredPathResults []RegisteredPathResult `json:"registered_path_results"`
}

type RegisteredPathResult struct {
	RequestedPath string           `json:"requested_path"`
	Success       *RegisterSuccess `json:"success,omitempty"`
	Failure       *OperFailure     `json:"failure,omitempty"`
}

type RegisterSuccess struct {
	RegisteredPath string `json:"registered_path"`
}

type Deregister struct {
	Paths []string `json:"paths"`
}

type DeregisterResp struct {
	DeregisteredPathResults []DeregisteredPathResult `json:"deregistered_path_results"`
}

type DeregisteredPathResult struct {
	RequestedPath string             `json:"requested_path"`
	Success       *DeregisterSuccess `json:"success,omitempty"`
	Failure       *OperFailure       `json:"failure,omitempty"`
}

type DeregisterSuccess struct {
	DeregisteredPaths []string `json:"deregistered_path"`
}

// OperFailure is the common per-path failure shape shared by the
// Register, Deregister, Set, Add and Delete responses and by
// OperationComplete notifications.
type OperFailure struct {
	ErrCode ErrorCode `json:"err_code"`
	ErrMsg  string    `json:"err_msg"`
}

// --- GetSupportedDM ------------------------------------------------------

type GetSupportedDM struct {
	ObjPaths       []string `json:"obj_paths"`
	FirstLevelOnly bool     `json:"first_level_only"`
	ReturnCommands bool     `json:"return_commands"`
	ReturnEvents   bool     `json:"return_events"`
	ReturnParams   bool     `json:"return_params"`
}

type GetSupportedDMResp struct {
	ReqObjResults []ReqObjResult `json:"req_obj_results"`
}

type ReqObjResult struct {
	ReqObjPath    string         `json:"req_obj_path"`
	ErrCode       ErrorCode      `json:"err_code"`
	ErrMsg        string         `json:"err_msg"`
	SupportedObjs []SupportedObj `json:"supported_objs"`
}

type SupportedObj struct {
	SupportedObjPath  string             `json:"supported_obj_path"`
	Access            Access             `json:"access"`
	IsMultiInstance   bool               `json:"is_multi_instance"`
	SupportedParams   []SupportedParam   `json:"supported_params"`
	SupportedEvents   []SupportedEvent   `json:"supported_events"`
	SupportedCommands []SupportedCommand `json:"supported_commands"`
}

type SupportedParam struct {
	ParamName string    `json:"param_name"`
	Access    Access    `json:"access"`
	ValueType ValueType `json:"value_type"`
}

type SupportedEvent struct {
	EventName string   `json:"event_name"`
	ArgNames  []string `json:"arg_names"`
}

type SupportedCommand struct {
	CommandName    string      `json:"command_name"`
	CommandType    CommandType `json:"command_type"`
	InputArgNames  []string    `json:"input_arg_names"`
	OutputArgNames []string    `json:"output_arg_names"`
}

// --- Get -------------------------------------------------------------

type Get struct {
	Paths    []string `json:"paths"`
	MaxDepth int      `json:"max_depth"`
}

type GetResp struct {
	ResolvedPathResults []ResolvedPathResult `json:"resolved_path_results"`
}

type ResolvedPathResult struct {
	ResolvedPath string            `json:"resolved_path"`
	ResultParams map[string]string `json:"result_params,omitempty"`
	ErrCode      ErrorCode         `json:"err_code,omitempty"`
	ErrMsg       string            `json:"err_msg,omitempty"`
}

// --- Set ---------------------------------------------------------------

type Set struct {
	AllowPartial bool        `json:"allow_partial"`
	UpdateObjs   []UpdateObj `json:"update_objs"`
}

type UpdateObj struct {
	ObjPath       string         `json:"obj_path"`
	ParamSettings []ParamSetting `json:"param_settings"`
}

type ParamSetting struct {
	Param string `json:"param"`
	Value string `json:"value"`
}

type SetResp struct {
	UpdatedObjResults []UpdatedObjResult `json:"updated_obj_results"`
}

type UpdatedObjResult struct {
	RequestedPath string       `json:"requested_path"`
	ParamErrs     []ParamError `json:"param_errs,omitempty"`
	Failure       *OperFailure `json:"failure,omitempty"`
}

type ParamError struct {
	Param   string    `json:"param"`
	ErrCode ErrorCode `json:"err_code"`
	ErrMsg  string    `json:"err_msg"`
}

// --- Add -----------------------------------------------------------

type Add struct {
	AllowPartial bool        `json:"allow_partial"`
	CreateObjs   []CreateObj `json:"create_objs"`
}

type CreateObj struct {
	ObjPath       string         `json:"obj_path"`
	ParamSettings []ParamSetting `json:"param_settings"`
}

type AddResp struct {
	CreatedObjResults []CreatedObjResult `json:"created_obj_results"`
}

type CreatedObjResult struct {
	RequestedPath  string       `json:"requested_path"`
	InstanceNumber int          `json:"instance_number,omitempty"`
	ParamErrs      []ParamError `json:"param_errs,omitempty"`
	Failure        *OperFailure `json:"failure,omitempty"`
}

// --- Delete --------------------------------------------------------

type Delete struct {
	AllowPartial bool     `json:"allow_partial"`
	ObjPaths     []string `json:"obj_paths"`
}

type DeleteResp struct {
	DeletedObjResults []DeletedObjResult `json:"deleted_obj_results"`
}

type DeletedObjResult struct {
	RequestedPath string       `json:"requested_path"`
	Failure       *OperFailure `json:"failure,omitempty"`
}

// --- Operate -----------------------------------------------------

type Operate struct {
	Command    string            `json:"command"`
	CommandKey string            `json:"command_key"`
	SendResp   bool              `json:"send_resp"`
	InputArgs  map[string]string `json:"input_args,omitempty"`
}

type OperateResp struct {
	ReqObjPath string            `json:"req_obj_path,omitempty"`
	OutputArgs map[string]string `json:"output_args,omitempty"`
}

// --- GetInstances --------------------------------------------------

type GetInstances struct {
	ObjPaths       []string `json:"obj_paths"`
	FirstLevelOnly bool     `json:"first_level_only"`
}

type GetInstancesResp struct {
	ReqPathResults []ReqPathInstances `json:"req_path_results"`
}

type ReqPathInstances struct {
	ReqPath       string   `json:"req_path"`
	CurrInstances []string `json:"curr_insts"`
}

// --- Notify ----------------------------------------------------------

type Notify struct {
	SubscriptionID string `json:"subscription_id"`
	SendResp       bool   `json:"send_resp"`

	ValueChange    *ValueChangeNotify    `json:"value_change,omitempty"`
	ObjCreation    *ObjCreationNotify    `json:"obj_creation,omitempty"`
	ObjDeletion    *ObjDeletionNotify    `json:"obj_deletion,omitempty"`
	OperComplete   *OperCompleteNotify   `json:"oper_complete,omitempty"`
	Event          *EventNotify          `json:"event,omitempty"`
	OnBoardRequest *OnBoardRequestNotify `json:"on_board_req,omitempty"`
}

// Kind reports which of the Notify's payload variants is populated.
func (n *Notify) Kind() NotifyType {
	switch {
	case n.ValueChange != nil:
		return NotifyValueChange
	case n.ObjCreation != nil:
		return NotifyObjectCreation
	case n.ObjDeletion != nil:
		return NotifyObjectDeletion
	case n.OperComplete != nil:
		return NotifyOperationComplete
	case n.Event != nil:
		return NotifyEvent
	case n.OnBoardRequest != nil:
		return NotifyOnBoardRequest
	default:
		return ""
	}
}

type ValueChangeNotify struct {
	ParamPath  string `json:"param_path"`
	ParamValue string `json:"param_value"`
}

type ObjCreationNotify struct {
	ObjPath string `json:"obj_path"`
}

type ObjDeletionNotify struct {
	ObjPath string `json:"obj_path"`
}

type OperCompleteNotify struct {
	ObjPath     string            `json:"obj_path"`
	CommandName string            `json:"command_name"`
	CommandKey  string            `json:"command_key"`
	OutputArgs  map[string]string `json:"output_args,omitempty"`
	Failure     *OperFailure      `json:"failure,omitempty"`
}

type EventNotify struct {
	ObjPath   string            `json:"obj_path"`
	EventName string            `json:"event_name"`
	EventArgs map[string]string `json:"event_args,omitempty"`
}

type OnBoardRequestNotify struct {
	OUI          string `json:"oui"`
	ProductClass string `json:"product_class"`
	SerialNumber string `json:"serial_number"`
}

type NotifyResp struct {
	SubscriptionID string `json:"subscription_id"`
}
