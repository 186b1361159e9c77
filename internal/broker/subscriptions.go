package broker

import (
	"strings"

	"github.com/uspbroker/broker/internal/metrics"
	"github.com/uspbroker/broker/internal/store"
	"github.com/uspbroker/broker/internal/usp"
)

// subscriptionTablePath is the Broker's own data model object for
// subscription rows. It is never owned by a registered Service — the
// Broker answers requests against it directly — which is why
// handleControllerRequest routes paths under this prefix here instead
// of through SchemaStore.Lookup.
const subscriptionTablePath = "Device.LocalAgent.Subscription."

func isSubscriptionPath(path string) bool {
	return strings.HasPrefix(path, subscriptionTablePath)
}

// SubscriptionBridge keeps the Controller-facing
// subscription table and each Service's own vendor subscription table
// in sync: every row a Controller adds here is mirrored onto the
// owning Service (with a Broker-marked subscription id so reconciliation
// can tell it apart from a row the Service's other Controllers created
// directly), and every Notify the Service emits against that vendor row
// is relayed back up to the Controller that owns the row. The Service
// is handed the Broker-minted id itself, so the relayed Notify carries
// the same subscription_id the Service sent.
func (a *Actor) handleSubscriptionRequest(endpointID string, msg *usp.Message) {
	switch {
	case msg.Add != nil:
		a.handleSubscribeAdd(endpointID, msg)
	case msg.Delete != nil:
		a.handleSubscribeDelete(endpointID, msg)
	case msg.Get != nil:
		a.handleSubscribeGet(endpointID, msg)
	default:
		a.sendError(endpointID, msg, usp.ErrRequestDenied("unsupported operation on subscription table"))
	}
}

// reconcileSubscriptions runs once per Service, right after schema
// discovery, and brings the Service's own vendor subscription table
// back in line with what the Broker believes it bridged there. A
// Service's on-disk subscription rows outlive a single Broker process,
// so on reconnect the two can disagree: a row the Broker no longer
// recognises, a row whose Enable got flipped off, or a Broker-side
// subscription with no matching vendor row left after a crash.
func (a *Actor) reconcileSubscriptions(svc *Service) {
	instanceID := svc.InstanceNumber
	stored := make(map[string]SubsMapEntry)
	if a.subsTable != nil {
		if rows, err := a.subsTable.ByServiceInstance(instanceID); err == nil {
			for _, row := range rows {
				stored[row.SubscriptionID] = SubsMapEntry(row)
			}
		}
	}

	a.forwardToService(svc, usp.MsgGet, func(msgID string) *usp.Message {
		return &usp.Message{
			Header: &usp.Header{MsgID: msgID, MsgType: usp.MsgGet},
			Get:    &usp.Get{Paths: []string{subscriptionTablePath}},
		}
	}, func(resp *usp.Message, fault *usp.Fault) {
		if fault != nil || resp == nil || resp.GetResp == nil {
			return
		}

		paired := make(map[string]bool)
		for _, row := range resp.GetResp.ResolvedPathResults {
			id := row.ResultParams["ID"]
			if !usp.IsBrokerMarked(id) {
				continue
			}
			enable := row.ResultParams["Enable"] != "false"
			reference := row.ResultParams["Reference"]
			notifType := usp.NotifyType(row.ResultParams["NotifType"])

			want, known := stored[id]
			matches := known && want.Path == reference && want.NotifType == notifType
			if !enable || !matches {
				a.sendUnsubscribe(svc, row.ResolvedPath)
				continue
			}
			if _, _, ok := a.schema.Lookup(reference); !ok {
				continue
			}
			paired[id] = true
			if _, already := a.subsMap[id]; !already {
				entry := want
				a.subsMap[id] = &entry
			}
		}

		a.startUnpairedSubscriptions(instanceID, paired)
	})
}

// sendUnsubscribe deletes a stale Broker-marked row straight out of the
// Service's own subscription table — used for rows reconcile could not
// pair against anything the Broker still owns.
func (a *Actor) sendUnsubscribe(svc *Service, resolvedPath string) {
	a.forwardToService(svc, usp.MsgDelete, func(msgID string) *usp.Message {
		return &usp.Message{
			Header: &usp.Header{MsgID: msgID, MsgType: usp.MsgDelete},
			Delete: &usp.Delete{ObjPaths: []string{resolvedPath}},
		}
	}, func(resp *usp.Message, fault *usp.Fault) {
		if fault != nil {
			a.log.Warn().Str("path", resolvedPath).Err(fault).Msg("failed to delete stale vendor subscription during reconcile")
		}
	})
}

// startUnpairedSubscriptions re-bridges every Broker-owned subscription
// for instanceID that the reconcile pass above could not find a vendor
// row for — the Service lost it, most likely to a restart of its own.
func (a *Actor) startUnpairedSubscriptions(instanceID int, paired map[string]bool) {
	for subID, row := range a.subsMap {
		if row.ServiceInstance != instanceID || paired[subID] {
			continue
		}
		a.bridgeVendorSubscription(instanceID, subID, row.Path, row.NotifType)
	}
}

func (a *Actor) handleSubscribeAdd(endpointID string, msg *usp.Message) {
	results := make([]usp.CreatedObjResult, 0, len(msg.Add.CreateObjs))
	for _, create := range msg.Add.CreateObjs {
		reference := paramValue(create.ParamSettings, "Reference")
		notifType := usp.NotifyType(paramValue(create.ParamSettings, "NotifType"))

		instanceID, _, ok := a.schema.Lookup(reference)
		if !ok {
			results = append(results, usp.CreatedObjResult{
				RequestedPath: create.ObjPath,
				Failure:       errNoSchemaOwner(reference).ToOperFailure(),
			})
			continue
		}

		subID := a.ids.NextSubscriptionID()
		row := SubsMapEntry{
			SubscriptionID:     subID,
			ServiceInstance:    instanceID,
			ControllerEndpoint: endpointID,
			Path:               reference,
			NotifType:          notifType,
			BrokerCreated:      true,
		}
		a.subsMap[subID] = &row
		if a.subsTable != nil {
			_ = a.subsTable.Put(store.SubscriptionRow(row))
		}
		metrics.SubscriptionsActive.Set(float64(len(a.subsMap)))

		a.bridgeVendorSubscription(instanceID, subID, reference, notifType)

		results = append(results, usp.CreatedObjResult{
			RequestedPath: create.ObjPath,
			ParamErrs:     nil,
		})
	}
	resp := &usp.Message{
		Header:  &usp.Header{MsgID: msg.MsgID(), MsgType: usp.MsgAddResp},
		AddResp: &usp.AddResp{CreatedObjResults: results},
	}
	a.send(endpointID, resp)
}

// bridgeVendorSubscription creates the companion subscription on the
// owning Service's own subscription table. It runs fire-and-forget:
// the Controller already got its AddResp above, matching the original
// broker's behaviour of not holding the Controller's request open for
// the length of a vendor round-trip.
func (a *Actor) bridgeVendorSubscription(instanceID int, brokerSubID, reference string, notifType usp.NotifyType) {
	svc := a.serviceByInstance(instanceID)
	if svc == nil {
		return
	}
	a.forwardToService(svc, usp.MsgAdd, func(msgID string) *usp.Message {
		return &usp.Message{
			Header: &usp.Header{MsgID: msgID, MsgType: usp.MsgAdd},
			Add: &usp.Add{
				CreateObjs: []usp.CreateObj{{
					ObjPath: subscriptionTablePath,
					ParamSettings: []usp.ParamSetting{
						{Param: "Reference", Value: reference},
						{Param: "NotifType", Value: string(notifType)},
						{Param: "ID", Value: brokerSubID},
					},
				}},
			},
		}
	}, func(resp *usp.Message, fault *usp.Fault) {
		if fault != nil {
			a.log.Warn().Str("subscription", brokerSubID).Err(fault).Msg("vendor subscription bridge failed")
		}
	})
}

func (a *Actor) handleSubscribeDelete(endpointID string, msg *usp.Message) {
	results := make([]usp.DeletedObjResult, 0, len(msg.Delete.ObjPaths))
	for _, path := range msg.Delete.ObjPaths {
		removed := false
		for subID, row := range a.subsMap {
			if row.ControllerEndpoint == endpointID && subscriptionRowMatchesPath(row, path) {
				a.removeSubscription(subID)
				removed = true
			}
		}
		if removed {
			results = append(results, usp.DeletedObjResult{RequestedPath: path})
		} else {
			results = append(results, usp.DeletedObjResult{
				RequestedPath: path,
				Failure:       usp.ErrDeregisterFailure("no subscription found at %q", path).ToOperFailure(),
			})
		}
	}
	resp := &usp.Message{
		Header:     &usp.Header{MsgID: msg.MsgID(), MsgType: usp.MsgDeleteResp},
		DeleteResp: &usp.DeleteResp{DeletedObjResults: results},
	}
	a.send(endpointID, resp)
}

// subscriptionRowMatchesPath compares a row's synthetic instance path
// "Device.LocalAgent.Subscription.<id>." against the requested delete
// path; the broker assigns instance paths by subscription id so no
// separate instance-number table is needed for this Broker-owned
// object.
func subscriptionRowMatchesPath(row *SubsMapEntry, path string) bool {
	return strings.HasPrefix(path, subscriptionTablePath+row.SubscriptionID) || path == subscriptionTablePath+row.SubscriptionID+"."
}

func (a *Actor) handleSubscribeGet(endpointID string, msg *usp.Message) {
	var results []usp.ResolvedPathResult
	for subID, row := range a.subsMap {
		if row.ControllerEndpoint != endpointID {
			continue
		}
		results = append(results, usp.ResolvedPathResult{
			ResolvedPath: subscriptionTablePath + subID + ".",
			ResultParams: map[string]string{
				"Reference": row.Path,
				"NotifType": string(row.NotifType),
			},
		})
	}
	resp := &usp.Message{
		Header:  &usp.Header{MsgID: msg.MsgID(), MsgType: usp.MsgGetResp},
		GetResp: &usp.GetResp{ResolvedPathResults: results},
	}
	a.send(endpointID, resp)
}

func (a *Actor) removeSubscription(subID string) {
	delete(a.subsMap, subID)
	if a.subsTable != nil {
		_ = a.subsTable.Delete(subID)
	}
	metrics.SubscriptionsActive.Set(float64(len(a.subsMap)))
}

func paramValue(settings []usp.ParamSetting, name string) string {
	for _, s := range settings {
		if s.Param == name {
			return s.Value
		}
	}
	return ""
}

// handleNotify is the entry point for an inbound Notify from a
// Service. A Notify is accepted only if the Service is known and
// send_resp is false (the Broker never sets NotifRetry, so a Service
// that asks for a NotifyResp is violating the contract); everything
// else is routed by relayNotify. OperationComplete additionally closes
// out the matching ReqMapEntry (RequestBridge), independent of whether
// routing the notification itself succeeds.
func (a *Actor) handleNotify(endpointID string, msg *usp.Message) {
	if msg.Notify == nil {
		return
	}
	notify := msg.Notify

	if notify.SendResp {
		a.sendError(endpointID, msg, usp.ErrRequestDenied("broker never arms NotifRetry; send_resp=true notifications are rejected"))
		return
	}

	svc := a.serviceByEndpoint(endpointID)
	if svc == nil {
		a.log.Warn().Str("endpoint", endpointID).Str("subscription", notify.SubscriptionID).
			Msg("notify from unknown service")
		return
	}

	kind := notify.Kind()
	if svc.AddPassthruInFlight > 0 &&
		(kind == usp.NotifyObjectCreation || kind == usp.NotifyObjectDeletion) {
		svc.PendingAddNotifies = append(svc.PendingAddNotifies, msg)
		return
	}

	if kind == usp.NotifyOperationComplete {
		a.completeAsyncOperate(svc, notify.OperComplete)
	}

	a.relayNotify(svc, msg)
}

// relayNotify forwards a Notify from a Service upward to the
// Controller whose bridged subscription row produced it, carrying the
// row's Broker-minted subscription_id (the same value the Service sent)
// under a fresh Broker msg_id. Lookup is by the subscription_id the
// Service itself carries on the Notify — the Broker-minted id it was
// handed when the vendor subscription was bridged — not by scanning
// for the first row against the same Service, which breaks as soon as
// a Service has more than one bridged subscription.
func (a *Actor) relayNotify(svc *Service, msg *usp.Message) {
	notify := msg.Notify

	row, ok := a.subsMap[notify.SubscriptionID]
	if !ok || row.ServiceInstance != svc.InstanceNumber {
		a.log.Warn().Str("endpoint", svc.EndpointID).Str("subscription", notify.SubscriptionID).
			Msg("notify from service with no bridged subscription")
		return
	}

	relayed := *notify
	relayed.SubscriptionID = row.SubscriptionID

	var brokerMsgID string
	if notify.SendResp {
		brokerMsgID = a.ids.NextMsgID()
		a.msgMap[brokerMsgID] = &MsgMapEntry{
			BrokerMsgID:     brokerMsgID,
			ServiceInstance: row.ServiceInstance,
			OriginMsgID:     msg.MsgID(),
		}
	} else {
		brokerMsgID = a.ids.NextMsgID()
	}

	out := &usp.Message{
		Header: &usp.Header{MsgID: brokerMsgID, MsgType: usp.MsgNotify},
		Notify: &relayed,
	}
	a.send(row.ControllerEndpoint, out)
}

// handleNotifyResp relays a Controller's NotifyResp back down to the
// Service that originated the Notify, restoring the Service's own
// msg_id from the MsgMapEntry recorded in relayNotify.
func (a *Actor) handleNotifyResp(endpointID string, msg *usp.Message) {
	entry, ok := a.msgMap[msg.MsgID()]
	if !ok {
		a.log.Warn().Str("endpoint", endpointID).Str("msg_id", msg.MsgID()).Msg("unsolicited notify_resp")
		return
	}
	delete(a.msgMap, msg.MsgID())

	svc := a.serviceByInstance(entry.ServiceInstance)
	if svc == nil {
		return
	}
	out := &usp.Message{
		Header:     &usp.Header{MsgID: entry.OriginMsgID, MsgType: usp.MsgNotifyResp},
		NotifyResp: msg.NotifyResp,
	}
	a.send(svc.EndpointID, out)
}

// dropSubscriptionsFor removes every subscription row bridged against
// a disconnecting Service (called from lifecycle teardown).
func (a *Actor) dropSubscriptionsFor(instanceID int) {
	for subID, row := range a.subsMap {
		if row.ServiceInstance == instanceID {
			a.removeSubscription(subID)
		}
	}
}

// dropSubscriptionsForPaths removes subscription rows whose reference
// path was just deregistered.
func (a *Actor) dropSubscriptionsForPaths(instanceID int, paths []string) {
	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}
	for subID, row := range a.subsMap {
		if row.ServiceInstance == instanceID && pathSet[row.Path] {
			a.removeSubscription(subID)
		}
	}
}
