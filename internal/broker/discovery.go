package broker

import "github.com/uspbroker/broker/internal/usp"

// SchemaDiscovery asks a freshly-registered Service what
// data model surface it actually supports, and records the answer in
// the SchemaStore so PassThru and RequestBridge can resolve a path to
// an owning Service without guessing from the registered path alone
// (a Service may register a broad object and only support a subset of
// its parameters/commands/events).
func (a *Actor) requestSchema(svc *Service, paths []string) {
	instanceID := svc.InstanceNumber
	a.forwardToService(svc, usp.MsgGetSupportedDM, func(msgID string) *usp.Message {
		return &usp.Message{
			Header: &usp.Header{MsgID: msgID, MsgType: usp.MsgGetSupportedDM},
			GetSupportedDM: &usp.GetSupportedDM{
				ObjPaths:       paths,
				ReturnCommands: true,
				ReturnEvents:   true,
				ReturnParams:   true,
			},
		}
	}, func(msg *usp.Message, fault *usp.Fault) {
		a.onSchemaDiscovered(instanceID, msg, fault)
	})
}

func (a *Actor) onSchemaDiscovered(instanceID int, msg *usp.Message, fault *usp.Fault) {
	svc := a.serviceByInstance(instanceID)
	if svc == nil {
		return // Service disconnected before discovery completed
	}
	if fault != nil {
		a.log.Warn().Int("instance", instanceID).Err(fault).Msg("schema discovery failed")
		return
	}
	if msg == nil || msg.GetSupportedDMResp == nil {
		a.log.Warn().Int("instance", instanceID).Msg("schema discovery returned no body")
		return
	}

	var objs []usp.SupportedObj
	for _, reqResult := range msg.GetSupportedDMResp.ReqObjResults {
		if reqResult.ErrCode != 0 {
			a.log.Warn().Int("instance", instanceID).Str("path", reqResult.ReqObjPath).
				Str("err", reqResult.ErrMsg).Msg("service rejected schema request for path")
			continue
		}
		objs = append(objs, reqResult.SupportedObjs...)
	}

	a.schema.PutSchema(instanceID, objs)

	// The schema is stored before the two post-discovery round-trips
	// below, so a Notify or response arriving mid-reconcile already
	// resolves against the newly-registered subtree.
	a.reconcileSubscriptions(svc)
	a.seedInstanceCache(svc)
}

// seedInstanceCache issues a GetInstances for every top-level object
// this Service just registered, so PassThru's Delete check
// (checkInstanceCache) has a population to consult instead of always
// leaving the decision to the Service. After seeding, PassThru's
// updateInstanceCache keeps the cache in step with confirmed Adds and
// Deletes.
func (a *Actor) seedInstanceCache(svc *Service) {
	instanceID := svc.InstanceNumber
	for _, path := range svc.RegisteredPaths {
		objPath := path
		a.forwardToService(svc, usp.MsgGetInstances, func(msgID string) *usp.Message {
			return a.builders.GetInstances([]string{objPath}, false)
		}, func(resp *usp.Message, fault *usp.Fault) {
			if fault != nil {
				a.log.Warn().Int("instance", instanceID).Str("path", objPath).Err(fault).
					Msg("instance cache seeding failed")
				return
			}
			if resp == nil || resp.GetInstancesResp == nil {
				return
			}
			for _, r := range resp.GetInstancesResp.ReqPathResults {
				a.instCache.Put(instanceID, r.ReqPath, r.CurrInstances)
			}
		})
	}
}

// handleGetSupportedDMResp dispatches an inbound GetSupportedDMResp to
// the pending correlator entry that requested it.
func (a *Actor) handleGetSupportedDMResp(endpointID string, msg *usp.Message) {
	if !a.completeRequest(msg.MsgID(), msg) {
		a.log.Warn().Str("endpoint", endpointID).Str("msg_id", msg.MsgID()).
			Msg("unsolicited get_supported_dm_resp")
	}
}
