package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/hyponet/eventbus"

	"github.com/basaltos/basalt/pkg/types"
)

func BuildNameEvent(actionType string, parent types.FileID, name string, refCount int32) *types.Event {
	return &types.Event{
		Id:              uuid.New().String(),
		Type:            actionType,
		Source:          "namecache",
		SpecVersion:     "1.0",
		Time:            time.Now(),
		RefType:         "name",
		RefID:           parent,
		DataContentType: "application/event-data",
		Data: types.EventData{
			ID:       parent,
			Name:     name,
			RefCount: refCount,
		},
	}
}

func BuildPageEvent(actionType string, file types.FileID, off int64) *types.Event {
	return &types.Event{
		Id:              uuid.New().String(),
		Type:            actionType,
		Source:          "pagecache",
		SpecVersion:     "1.0",
		Time:            time.Now(),
		RefType:         "page",
		RefID:           file,
		DataContentType: "application/event-data",
		Data: types.EventData{
			ID:     file,
			Offset: off,
		},
	}
}

func BuildNodeEvent(actionType string, id types.FileID, kind types.Kind) *types.Event {
	return &types.Event{
		Id:              uuid.New().String(),
		Type:            actionType,
		Source:          "registry",
		SpecVersion:     "1.0",
		Time:            time.Now(),
		RefType:         "node",
		RefID:           id,
		DataContentType: "application/event-data",
		Data: types.EventData{
			ID:   id,
			Kind: kind,
		},
	}
}

func PublishNameEvent(actionType string, parent types.FileID, name string, refCount int32) {
	eventbus.Publish(ActionTopic(TopicNameActionFmt, actionType), BuildNameEvent(actionType, parent, name, refCount))
}

func PublishPageEvent(actionType string, file types.FileID, off int64) {
	eventbus.Publish(ActionTopic(TopicPageActionFmt, actionType), BuildPageEvent(actionType, file, off))
}

func PublishNodeEvent(actionType string, id types.FileID, kind types.Kind) {
	eventbus.Publish(ActionTopic(TopicNodeActionFmt, actionType), BuildNodeEvent(actionType, id, kind))
}
