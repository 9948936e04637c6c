package rpc

import (
	"errors"
	"sort"
	"time"

	"github.com/wfunc/mafiaserver/models"
	"github.com/wfunc/mafiaserver/room"
	"github.com/wfunc/mafiaserver/services"
)

var ErrRoomNotFound = errors.New("room not found")

// AdminService exposes read-only room and record data over net/rpc.
// Methods follow the net/rpc signature: exported args, pointer reply, error.
type AdminService struct {
	rooms   *room.Manager
	records *services.RecordService
	started time.Time
}

func NewAdminService(rooms *room.Manager, records *services.RecordService) *AdminService {
	return &AdminService{rooms: rooms, records: records, started: time.Now()}
}

type RoomSummary struct {
	Code      string
	Phase     models.Phase
	HostID    string
	Players   int
	Connected int
	Round     int
	Winner    models.Winner
	CreatedAt time.Time
}

type ListRoomsArgs struct{}

type ListRoomsReply struct {
	Rooms []RoomSummary
}

type GetRoomArgs struct {
	Code string
}

type GetRoomReply struct {
	Room    RoomSummary
	Players []models.PlayerView
}

type StatsArgs struct{}

type StatsReply struct {
	Rooms          int
	RecordsEnabled bool
	Records        models.RecordStats
	Uptime         time.Duration
}

func summarize(r *room.Room) RoomSummary {
	return RoomSummary{
		Code:      r.Code,
		Phase:     r.Phase(),
		HostID:    r.HostID,
		Players:   len(r.Players),
		Connected: r.ConnectedCount(),
		Round:     r.Round,
		Winner:    r.Winner,
		CreatedAt: r.CreatedAt,
	}
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, r := range a.rooms.List() {
		r.Mu.Lock()
		reply.Rooms = append(reply.Rooms, summarize(r))
		r.Mu.Unlock()
	}
	sort.Slice(reply.Rooms, func(i, j int) bool {
		return reply.Rooms[i].CreatedAt.Before(reply.Rooms[j].CreatedAt)
	})
	return nil
}

// GetRoom shows every role; it is an operator view.
func (a *AdminService) GetRoom(args *GetRoomArgs, reply *GetRoomReply) error {
	r, ok := a.rooms.GetRoom(args.Code)
	if !ok {
		return ErrRoomNotFound
	}
	r.Mu.Lock()
	defer r.Mu.Unlock()
	reply.Room = summarize(r)
	reply.Players = r.Views("", true)
	return nil
}

func (a *AdminService) Stats(args *StatsArgs, reply *StatsReply) error {
	reply.Rooms = a.rooms.Count()
	reply.Uptime = time.Since(a.started)
	if a.records == nil || !a.records.Enabled() {
		return nil
	}
	stats, err := a.records.Stats()
	if err != nil {
		return err
	}
	reply.RecordsEnabled = true
	reply.Records = stats
	return nil
}
