package broker

import "github.com/uspbroker/broker/internal/usp"

// subsetMessage returns a copy of msg carrying only the entries whose
// path is in keep — used by dispatchSplit to build one Service's share
// of a multi-path request. Operate is never subset (a single command
// always resolves to exactly one owner and is handled by
// handleOperate, not by the split path).
func subsetMessage(msg *usp.Message, keep []string) *usp.Message {
	keepSet := make(map[string]bool, len(keep))
	for _, p := range keep {
		keepSet[p] = true
	}

	out := &usp.Message{Header: &usp.Header{MsgType: msg.Header.MsgType}}
	switch {
	case msg.Get != nil:
		out.Get = &usp.Get{MaxDepth: msg.Get.MaxDepth}
		for _, p := range msg.Get.Paths {
			if keepSet[p] {
				out.Get.Paths = append(out.Get.Paths, p)
			}
		}
	case msg.Set != nil:
		out.Set = &usp.Set{AllowPartial: msg.Set.AllowPartial}
		for _, u := range msg.Set.UpdateObjs {
			if keepSet[u.ObjPath] {
				out.Set.UpdateObjs = append(out.Set.UpdateObjs, u)
			}
		}
	case msg.Add != nil:
		out.Add = &usp.Add{AllowPartial: msg.Add.AllowPartial}
		for _, c := range msg.Add.CreateObjs {
			if keepSet[c.ObjPath] {
				out.Add.CreateObjs = append(out.Add.CreateObjs, c)
			}
		}
	case msg.Delete != nil:
		out.Delete = &usp.Delete{AllowPartial: msg.Delete.AllowPartial}
		for _, p := range msg.Delete.ObjPaths {
			if keepSet[p] {
				out.Delete.ObjPaths = append(out.Delete.ObjPaths, p)
			}
		}
	case msg.GetInstances != nil:
		out.GetInstances = &usp.GetInstances{FirstLevelOnly: msg.GetInstances.FirstLevelOnly}
		for _, p := range msg.GetInstances.ObjPaths {
			if keepSet[p] {
				out.GetInstances.ObjPaths = append(out.GetInstances.ObjPaths, p)
			}
		}
	}
	return out
}

// responseMerger accumulates partial responses from each owning
// Service plus synthetic failures for unowned/unreachable paths, and
// renders one reply shaped like the original request once every
// sub-request has resolved.
type responseMerger struct {
	orig    *usp.Message
	pending int

	getResults      []usp.ResolvedPathResult
	setResults      []usp.UpdatedObjResult
	addResults      []usp.CreatedObjResult
	deleteResults   []usp.DeletedObjResult
	instanceResults []usp.ReqPathInstances
}

func newResponseMerger(orig *usp.Message, unowned []string) *responseMerger {
	m := &responseMerger{orig: orig}
	if len(unowned) > 0 {
		m.addFault(unowned, errNoSchemaOwner(""))
	}
	return m
}

func (m *responseMerger) done() bool {
	m.pending--
	return m.pending <= 0
}

func (m *responseMerger) addResult(resp *usp.Message) {
	switch {
	case resp.GetResp != nil:
		m.getResults = append(m.getResults, resp.GetResp.ResolvedPathResults...)
	case resp.SetResp != nil:
		m.setResults = append(m.setResults, resp.SetResp.UpdatedObjResults...)
	case resp.AddResp != nil:
		m.addResults = append(m.addResults, resp.AddResp.CreatedObjResults...)
	case resp.DeleteResp != nil:
		m.deleteResults = append(m.deleteResults, resp.DeleteResp.DeletedObjResults...)
	case resp.GetInstancesResp != nil:
		m.instanceResults = append(m.instanceResults, resp.GetInstancesResp.ReqPathResults...)
	}
}

// addFault synthesizes a per-path failure result for every path in
// paths, matching whichever response shape the original request
// expects.
func (m *responseMerger) addFault(paths []string, fault *usp.Fault) {
	for _, p := range paths {
		switch {
		case m.orig.Get != nil:
			m.getResults = append(m.getResults, usp.ResolvedPathResult{
				ResolvedPath: p, ErrCode: fault.Code, ErrMsg: fault.Message,
			})
		case m.orig.Set != nil:
			m.setResults = append(m.setResults, usp.UpdatedObjResult{RequestedPath: p, Failure: fault.ToOperFailure()})
		case m.orig.Add != nil:
			m.addResults = append(m.addResults, usp.CreatedObjResult{RequestedPath: p, Failure: fault.ToOperFailure()})
		case m.orig.Delete != nil:
			m.deleteResults = append(m.deleteResults, usp.DeletedObjResult{RequestedPath: p, Failure: fault.ToOperFailure()})
		case m.orig.GetInstances != nil:
			m.instanceResults = append(m.instanceResults, usp.ReqPathInstances{ReqPath: p})
		}
	}
}

func (m *responseMerger) finish() *usp.Message {
	header := &usp.Header{MsgID: m.orig.MsgID()}
	switch {
	case m.orig.Get != nil:
		header.MsgType = usp.MsgGetResp
		return &usp.Message{Header: header, GetResp: &usp.GetResp{ResolvedPathResults: m.getResults}}
	case m.orig.Set != nil:
		header.MsgType = usp.MsgSetResp
		return &usp.Message{Header: header, SetResp: &usp.SetResp{UpdatedObjResults: m.setResults}}
	case m.orig.Add != nil:
		header.MsgType = usp.MsgAddResp
		return &usp.Message{Header: header, AddResp: &usp.AddResp{CreatedObjResults: m.addResults}}
	case m.orig.Delete != nil:
		header.MsgType = usp.MsgDeleteResp
		return &usp.Message{Header: header, DeleteResp: &usp.DeleteResp{DeletedObjResults: m.deleteResults}}
	case m.orig.GetInstances != nil:
		header.MsgType = usp.MsgGetInstancesResp
		return &usp.Message{Header: header, GetInstancesResp: &usp.GetInstancesResp{ReqPathResults: m.instanceResults}}
	default:
		header.MsgType = usp.MsgError
		return &usp.Message{Header: header, Error: usp.ErrInternalError("unsupported message shape in merge").ToUSPError()}
	}
}
