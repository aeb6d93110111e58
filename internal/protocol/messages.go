package protocol

import "github.com/alborrajo/alicia-server/internal/wire"

// Login is the sole client-initiated authentication command (spec
// §4.7/§6).
type Login struct {
	LoginID string
	Token   string
}

func (m *Login) Command() CommandID { return CmdLogin }

func (m *Login) Read(r *wire.Reader) (err error) {
	if m.LoginID, err = r.String(); err != nil {
		return err
	}
	m.Token, err = r.String()
	return err
}

func (m *Login) Write(w *wire.Writer) {
	w.String(m.LoginID)
	w.String(m.Token)
}

// LoginOK carries the advertised tier addresses and the substituted
// server notice, per spec §4.7/§6.
type LoginOK struct {
	CharacterUID      uint32
	CharacterCreator  bool
	Notice            string
	RanchAddress      string
	RanchPort         uint16
	RaceAddress       string
	RacePort          uint16
	MessengerAddress  string
	MessengerPort     uint16
	// RanchOTP is minted with hash(characterUID, ranch-tier resource)
	// for the lobby→ranch cross-tier handoff (spec §3.1).
	RanchOTP uint32
}

func (m *LoginOK) Command() CommandID { return CmdLoginOK }

func (m *LoginOK) Write(w *wire.Writer) {
	w.U32(m.RanchOTP)
	w.U32(m.CharacterUID)
	if m.CharacterCreator {
		w.U8(1)
	} else {
		w.U8(0)
	}
	w.String(m.Notice)
	w.String(m.RanchAddress)
	w.U16(m.RanchPort)
	w.String(m.RaceAddress)
	w.U16(m.RacePort)
	w.String(m.MessengerAddress)
	w.U16(m.MessengerPort)
}

func (m *LoginOK) Read(r *wire.Reader) (err error) {
	if m.RanchOTP, err = r.U32(); err != nil {
		return err
	}
	if m.CharacterUID, err = r.U32(); err != nil {
		return err
	}
	flag, err := r.U8()
	if err != nil {
		return err
	}
	m.CharacterCreator = flag != 0
	if m.Notice, err = r.String(); err != nil {
		return err
	}
	if m.RanchAddress, err = r.String(); err != nil {
		return err
	}
	if m.RanchPort, err = r.U16(); err != nil {
		return err
	}
	if m.RaceAddress, err = r.String(); err != nil {
		return err
	}
	if m.RacePort, err = r.U16(); err != nil {
		return err
	}
	if m.MessengerAddress, err = r.String(); err != nil {
		return err
	}
	m.MessengerPort, err = r.U16()
	return err
}

// LoginCancel rejects a login attempt with one of LoginCancelReason.
type LoginCancel struct {
	Reason LoginCancelReason
}

func (m *LoginCancel) Command() CommandID { return CmdLoginCancel }
func (m *LoginCancel) Write(w *wire.Writer) { w.U8(uint8(m.Reason)) }
func (m *LoginCancel) Read(r *wire.Reader) (err error) {
	v, err := r.U8()
	m.Reason = LoginCancelReason(v)
	return err
}

// MakeRoom requests creation of a new room (spec §3 Room fields).
type MakeRoom struct {
	Name           string
	Password       string
	MissionID      uint16
	CourseID       uint16
	MaxPlayerCount uint8
	GameMode       uint8
	TeamMode       uint8
}

func (m *MakeRoom) Command() CommandID { return CmdMakeRoom }

func (m *MakeRoom) Read(r *wire.Reader) (err error) {
	if m.Name, err = r.String(); err != nil {
		return err
	}
	if m.Password, err = r.String(); err != nil {
		return err
	}
	if m.MissionID, err = r.U16(); err != nil {
		return err
	}
	if m.CourseID, err = r.U16(); err != nil {
		return err
	}
	if m.MaxPlayerCount, err = r.U8(); err != nil {
		return err
	}
	if m.GameMode, err = r.U8(); err != nil {
		return err
	}
	m.TeamMode, err = r.U8()
	return err
}

func (m *MakeRoom) Write(w *wire.Writer) {
	w.String(m.Name)
	w.String(m.Password)
	w.U16(m.MissionID)
	w.U16(m.CourseID)
	w.U8(m.MaxPlayerCount)
	w.U8(m.GameMode)
	w.U8(m.TeamMode)
}

// MakeRoomOK confirms room creation with the new uid.
type MakeRoomOK struct {
	RoomUID uint32
}

func (m *MakeRoomOK) Command() CommandID   { return CmdMakeRoomOK }
func (m *MakeRoomOK) Write(w *wire.Writer) { w.U32(m.RoomUID) }
func (m *MakeRoomOK) Read(r *wire.Reader) (err error) {
	m.RoomUID, err = r.U32()
	return err
}

// EnterRoom requests entry to roomUID, optionally carrying an OTP
// minted by the lobby for a cross-tier handoff.
type EnterRoom struct {
	RoomUID      uint32
	CharacterUID uint32
	OTP          uint32
	Password     string
}

func (m *EnterRoom) Command() CommandID { return CmdEnterRoom }

func (m *EnterRoom) Read(r *wire.Reader) (err error) {
	if m.RoomUID, err = r.U32(); err != nil {
		return err
	}
	if m.CharacterUID, err = r.U32(); err != nil {
		return err
	}
	if m.OTP, err = r.U32(); err != nil {
		return err
	}
	m.Password, err = r.String()
	return err
}

func (m *EnterRoom) Write(w *wire.Writer) {
	w.U32(m.RoomUID)
	w.U32(m.CharacterUID)
	w.U32(m.OTP)
	w.String(m.Password)
}

// EnterRoomOK confirms entry and the racer oid the tracker assigned.
type EnterRoomOK struct {
	// OTP is populated by the lobby tier, minted with
	// hash(characterUID, roomUID), for the client to present to the
	// race tier's own EnterRoom (spec §3.1/§8 scenario 3).
	OTP uint32
	// RacerOid is populated by the race tier once the OTP has been
	// authorized and the tracker has assigned an oid; zero from the
	// lobby tier's reply.
	RacerOid uint32
}

func (m *EnterRoomOK) Command() CommandID { return CmdEnterRoomOK }
func (m *EnterRoomOK) Write(w *wire.Writer) {
	w.U32(m.OTP)
	w.U32(m.RacerOid)
}
func (m *EnterRoomOK) Read(r *wire.Reader) (err error) {
	if m.OTP, err = r.U32(); err != nil {
		return err
	}
	m.RacerOid, err = r.U32()
	return err
}

// EnterRoomCancel rejects entry with one of EnterRoomCancelStatus.
type EnterRoomCancel struct {
	Status EnterRoomCancelStatus
}

func (m *EnterRoomCancel) Command() CommandID { return CmdEnterRoomCancel }
func (m *EnterRoomCancel) Write(w *wire.Writer) { w.U8(uint8(m.Status)) }
func (m *EnterRoomCancel) Read(r *wire.Reader) (err error) {
	v, err := r.U8()
	m.Status = EnterRoomCancelStatus(v)
	return err
}

// LeaveRoom signals voluntary departure from the current room.
type LeaveRoom struct{}

func (m *LeaveRoom) Command() CommandID         { return CmdLeaveRoom }
func (m *LeaveRoom) Read(r *wire.Reader) error   { return nil }
func (m *LeaveRoom) Write(w *wire.Writer)        {}

// LeaveRoomOK acknowledges a LeaveRoom.
type LeaveRoomOK struct{}

func (m *LeaveRoomOK) Command() CommandID       { return CmdLeaveRoomOK }
func (m *LeaveRoomOK) Read(r *wire.Reader) error { return nil }
func (m *LeaveRoomOK) Write(w *wire.Writer)      {}

// ReadyRace toggles the sender's ready flag.
type ReadyRace struct{}

func (m *ReadyRace) Command() CommandID       { return CmdReadyRace }
func (m *ReadyRace) Read(r *wire.Reader) error { return nil }
func (m *ReadyRace) Write(w *wire.Writer)      {}

// RoomCountdown broadcasts the seconds remaining before a race stage
// transition (Waiting→Loading, Loading→Racing).
type RoomCountdown struct {
	Seconds uint16
}

func (m *RoomCountdown) Command() CommandID   { return CmdRoomCountdown }
func (m *RoomCountdown) Write(w *wire.Writer) { w.U16(m.Seconds) }
func (m *RoomCountdown) Read(r *wire.Reader) (err error) {
	m.Seconds, err = r.U16()
	return err
}

// StartRace is sent by the room master to begin Waiting→Loading.
type StartRace struct{}

func (m *StartRace) Command() CommandID       { return CmdStartRace }
func (m *StartRace) Read(r *wire.Reader) error { return nil }
func (m *StartRace) Write(w *wire.Writer)      {}

// StartRaceNotify broadcasts the selected map block once loading
// begins.
type StartRaceNotify struct {
	MapBlockID uint32
}

func (m *StartRaceNotify) Command() CommandID   { return CmdStartRaceNotify }
func (m *StartRaceNotify) Write(w *wire.Writer) { w.U32(m.MapBlockID) }
func (m *StartRaceNotify) Read(r *wire.Reader) (err error) {
	m.MapBlockID, err = r.U32()
	return err
}

// ChangeMasterNotify broadcasts the newly elected room master.
type ChangeMasterNotify struct {
	NewMasterCharacterUID uint32
}

func (m *ChangeMasterNotify) Command() CommandID   { return CmdChangeMasterNotify }
func (m *ChangeMasterNotify) Write(w *wire.Writer) { w.U32(m.NewMasterCharacterUID) }
func (m *ChangeMasterNotify) Read(r *wire.Reader) (err error) {
	m.NewMasterCharacterUID, err = r.U32()
	return err
}

// LoadingComplete signals the sending racer finished loading the
// course.
type LoadingComplete struct{}

func (m *LoadingComplete) Command() CommandID   { return CmdLoadingComplete }
func (m *LoadingComplete) Read(r *wire.Reader) error { return nil }
func (m *LoadingComplete) Write(w *wire.Writer)      {}

// UserRaceFinal reports a racer's finishing course time in
// milliseconds.
type UserRaceFinal struct {
	CourseTime uint32
}

func (m *UserRaceFinal) Command() CommandID   { return CmdUserRaceFinal }
func (m *UserRaceFinal) Write(w *wire.Writer) { w.U32(m.CourseTime) }
func (m *UserRaceFinal) Read(r *wire.Reader) (err error) {
	m.CourseTime, err = r.U32()
	return err
}

// StarPointGet reports a star-point gain event.
type StarPointGet struct {
	Gain uint32
}

func (m *StarPointGet) Command() CommandID   { return CmdStarPointGet }
func (m *StarPointGet) Write(w *wire.Writer) { w.U32(m.Gain) }
func (m *StarPointGet) Read(r *wire.Reader) (err error) {
	m.Gain, err = r.U32()
	return err
}

// StarPointGetOK acknowledges StarPointGet with the saturated total
// and whether the gauge saturation granted a magic item.
type StarPointGetOK struct {
	Total          uint32
	GiveMagicItem  bool
}

func (m *StarPointGetOK) Command() CommandID { return CmdStarPointGetOK }
func (m *StarPointGetOK) Write(w *wire.Writer) {
	w.U32(m.Total)
	if m.GiveMagicItem {
		w.U8(1)
	} else {
		w.U8(0)
	}
}
func (m *StarPointGetOK) Read(r *wire.Reader) (err error) {
	if m.Total, err = r.U32(); err != nil {
		return err
	}
	v, err := r.U8()
	m.GiveMagicItem = v != 0
	return err
}

// RequestSpur asks to consume the mode's spur star-point cost.
type RequestSpur struct{}

func (m *RequestSpur) Command() CommandID       { return CmdRequestSpur }
func (m *RequestSpur) Read(r *wire.Reader) error { return nil }
func (m *RequestSpur) Write(w *wire.Writer)      {}

// RequestSpurOK acknowledges a successful spur.
type RequestSpurOK struct{}

func (m *RequestSpurOK) Command() CommandID       { return CmdRequestSpurOK }
func (m *RequestSpurOK) Read(r *wire.Reader) error { return nil }
func (m *RequestSpurOK) Write(w *wire.Writer)      {}

// HurdleClearResult reports the quality of a jump.
type HurdleClearResult struct {
	Type HurdleClearType
}

func (m *HurdleClearResult) Command() CommandID   { return CmdHurdleClearResult }
func (m *HurdleClearResult) Write(w *wire.Writer) { w.U8(uint8(m.Type)) }
func (m *HurdleClearResult) Read(r *wire.Reader) (err error) {
	v, err := r.U8()
	m.Type = HurdleClearType(v)
	return err
}

// HurdleClearResultOK acknowledges HurdleClearResult with the racer's
// current jump combo.
type HurdleClearResultOK struct {
	Combo uint32
}

func (m *HurdleClearResultOK) Command() CommandID   { return CmdHurdleClearResultOK }
func (m *HurdleClearResultOK) Write(w *wire.Writer) { w.U32(m.Combo) }
func (m *HurdleClearResultOK) Read(r *wire.Reader) (err error) {
	m.Combo, err = r.U32()
	return err
}

// UserRaceUpdatePos reports a racer's current position.
type UserRaceUpdatePos struct {
	X, Y, Z float32
}

func (m *UserRaceUpdatePos) Command() CommandID { return CmdUserRaceUpdatePos }
func (m *UserRaceUpdatePos) Write(w *wire.Writer) {
	w.F32(m.X)
	w.F32(m.Y)
	w.F32(m.Z)
}
func (m *UserRaceUpdatePos) Read(r *wire.Reader) (err error) {
	if m.X, err = r.F32(); err != nil {
		return err
	}
	if m.Y, err = r.F32(); err != nil {
		return err
	}
	m.Z, err = r.F32()
	return err
}

// UserRaceItemGet reports pickup of a deck item.
type UserRaceItemGet struct {
	ItemOid uint32
}

func (m *UserRaceItemGet) Command() CommandID   { return CmdUserRaceItemGet }
func (m *UserRaceItemGet) Write(w *wire.Writer) { w.U32(m.ItemOid) }
func (m *UserRaceItemGet) Read(r *wire.Reader) (err error) {
	m.ItemOid, err = r.U32()
	return err
}

// RequestMagicItem asks to draw a magic item from the gauge.
type RequestMagicItem struct{}

func (m *RequestMagicItem) Command() CommandID       { return CmdRequestMagicItem }
func (m *RequestMagicItem) Read(r *wire.Reader) error { return nil }
func (m *RequestMagicItem) Write(w *wire.Writer)      {}

// RequestMagicItemOK acknowledges the item drawn.
type RequestMagicItemOK struct {
	Item MagicItem
}

func (m *RequestMagicItemOK) Command() CommandID   { return CmdRequestMagicItemOK }
func (m *RequestMagicItemOK) Write(w *wire.Writer) { w.U32(uint32(m.Item)) }
func (m *RequestMagicItemOK) Read(r *wire.Reader) (err error) {
	v, err := r.U32()
	m.Item = MagicItem(v)
	return err
}

// RequestMagicItemNotify broadcasts a peer's item draw.
type RequestMagicItemNotify struct {
	CharacterOid uint32
}

func (m *RequestMagicItemNotify) Command() CommandID   { return CmdRequestMagicItemNotify }
func (m *RequestMagicItemNotify) Write(w *wire.Writer) { w.U32(m.CharacterOid) }
func (m *RequestMagicItemNotify) Read(r *wire.Reader) (err error) {
	m.CharacterOid, err = r.U32()
	return err
}

// UseMagicItem asks to activate the held magic item.
type UseMagicItem struct{}

func (m *UseMagicItem) Command() CommandID       { return CmdUseMagicItem }
func (m *UseMagicItem) Read(r *wire.Reader) error { return nil }
func (m *UseMagicItem) Write(w *wire.Writer)      {}

// UseMagicItemOK acknowledges the use to the actor.
type UseMagicItemOK struct{}

func (m *UseMagicItemOK) Command() CommandID       { return CmdUseMagicItemOK }
func (m *UseMagicItemOK) Read(r *wire.Reader) error { return nil }
func (m *UseMagicItemOK) Write(w *wire.Writer)      {}

// UseMagicItemNotify broadcasts item use, and carries the target for
// Bolt's hit resolution (spec §8 scenario 6).
type UseMagicItemNotify struct {
	MagicItemID  uint32
	CharacterOid uint32
}

func (m *UseMagicItemNotify) Command() CommandID { return CmdUseMagicItemNotify }
func (m *UseMagicItemNotify) Write(w *wire.Writer) {
	w.U32(m.MagicItemID)
	w.U32(m.CharacterOid)
}
func (m *UseMagicItemNotify) Read(r *wire.Reader) (err error) {
	if m.MagicItemID, err = r.U32(); err != nil {
		return err
	}
	m.CharacterOid, err = r.U32()
	return err
}

// ItemSpawnNotify broadcasts a deck item's (re)spawn.
type ItemSpawnNotify struct {
	ItemOid uint32
	X, Y, Z float32
}

func (m *ItemSpawnNotify) Command() CommandID { return CmdItemSpawnNotify }
func (m *ItemSpawnNotify) Write(w *wire.Writer) {
	w.U32(m.ItemOid)
	w.F32(m.X)
	w.F32(m.Y)
	w.F32(m.Z)
}
func (m *ItemSpawnNotify) Read(r *wire.Reader) (err error) {
	if m.ItemOid, err = r.U32(); err != nil {
		return err
	}
	if m.X, err = r.F32(); err != nil {
		return err
	}
	if m.Y, err = r.F32(); err != nil {
		return err
	}
	m.Z, err = r.F32()
	return err
}

// ScoreRow is one entry of ScoreNotify's ordered table.
type ScoreRow struct {
	CharacterOid uint32
	CourseTime   uint32
}

// ScoreNotify broadcasts the final, course-time-ascending scoreboard.
type ScoreNotify struct {
	Rows []ScoreRow
}

func (m *ScoreNotify) Command() CommandID { return CmdScoreNotify }
func (m *ScoreNotify) Write(w *wire.Writer) {
	w.U8(uint8(len(m.Rows)))
	for _, row := range m.Rows {
		w.U32(row.CharacterOid)
		w.U32(row.CourseTime)
	}
}
func (m *ScoreNotify) Read(r *wire.Reader) error {
	n, err := r.U8()
	if err != nil {
		return err
	}
	m.Rows = make([]ScoreRow, n)
	for i := range m.Rows {
		if m.Rows[i].CharacterOid, err = r.U32(); err != nil {
			return err
		}
		if m.Rows[i].CourseTime, err = r.U32(); err != nil {
			return err
		}
	}
	return nil
}

// Heartbeat is a zero-payload liveness ping, valid in either
// direction (spec §8 boundary: a 0-byte payload is a valid command).
type Heartbeat struct{}

func (m *Heartbeat) Command() CommandID       { return CmdHeartbeat }
func (m *Heartbeat) Read(r *wire.Reader) error { return nil }
func (m *Heartbeat) Write(w *wire.Writer)      {}

// EnterRanch is the ranch tier's sole inbound command: present the OTP
// the lobby minted on login.
type EnterRanch struct {
	CharacterUID uint32
	OTP          uint32
}

func (m *EnterRanch) Command() CommandID { return CmdEnterRanch }
func (m *EnterRanch) Read(r *wire.Reader) (err error) {
	if m.CharacterUID, err = r.U32(); err != nil {
		return err
	}
	m.OTP, err = r.U32()
	return err
}
func (m *EnterRanch) Write(w *wire.Writer) {
	w.U32(m.CharacterUID)
	w.U32(m.OTP)
}

// EnterRanchOK confirms the ranch-tier handoff succeeded.
type EnterRanchOK struct{}

func (m *EnterRanchOK) Command() CommandID       { return CmdEnterRanchOK }
func (m *EnterRanchOK) Read(r *wire.Reader) error { return nil }
func (m *EnterRanchOK) Write(w *wire.Writer)      {}

// EnterRanchCancel rejects the handoff (OTP expired, mismatched, or
// already consumed).
type EnterRanchCancel struct{}

func (m *EnterRanchCancel) Command() CommandID       { return CmdEnterRanchCancel }
func (m *EnterRanchCancel) Read(r *wire.Reader) error { return nil }
func (m *EnterRanchCancel) Write(w *wire.Writer)      {}
