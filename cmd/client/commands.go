package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rfidvision/rfidlog/internal/client/api"
	"github.com/rfidvision/rfidlog/internal/client/reconcile"
	"github.com/rfidvision/rfidlog/internal/client/session"
	"github.com/rfidvision/rfidlog/internal/models"
)

const helpText = `Available commands:
  status                      reader, camera and session state
  identify                    enable automatic face capture
  continuous on|off           run the camera continuously
  camera [rotate cw|ccw | flip h|v | features on|off]
                              show or change the camera settings
  reselect                    identify the user by hand
  auto                        identify the next face automatically
  user <name>                 set the session user (offers to create it)
  users                       list users
  rename <user_id> <name>     rename a user
  deluser <user_id>           delete a user
  boxes                       boxes in the session and still available
  select <uid>                move a box into the session
  remove <uid>                take a box out of the session
  register <uid> <name>       create a box and its items
  add|inc|dec|drop <item_id>  change the user's items
  items                       the user's items
  scan                        read one tag
  read <block>                read a tag data block
  write <block> <text>        write a tag data block
  commit [comment]            submit the session and start a new one
  pending                     submissions waiting for a retry
  retry <id>                  resend a pending submission
  exit`

// repl reads commands from sc until exit or end of input.
func (st *station) repl(sc *bufio.Scanner) {
	for {
		fmt.Fprint(st.out, "rfidlog> ")
		if !sc.Scan() {
			return
		}
		args := strings.Fields(sc.Text())
		if len(args) == 0 {
			continue
		}
		if quit := st.exec(sc, args); quit {
			return
		}
	}
}

// exec runs one command and reports whether the shell should exit.
func (st *station) exec(sc *bufio.Scanner, args []string) bool {
	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "help":
		st.printf("%s\n", helpText)
	case "exit", "quit":
		return true
	case "status":
		st.status()
	case "identify":
		st.identifyAuto()
	case "continuous":
		st.continuous(rest)
	case "camera":
		st.camera(rest)
	case "reselect":
		st.trigger.ManualReselect()
		st.printf("Automatic identification paused; use 'user <name>'\n")
	case "auto":
		st.rearm()
		st.trigger.RestartAutomatic()
		st.printf("Automatic identification resumed\n")
	case "user":
		st.user(sc, rest)
	case "users":
		st.users()
	case "rename":
		st.renameUser(rest)
	case "deluser":
		st.deleteUser(sc, rest)
	case "boxes":
		st.boxes()
	case "select":
		st.selectBox(rest)
	case "remove":
		st.removeBox(rest)
	case "register":
		st.register(sc, rest)
	case "add", "inc", "dec", "drop":
		st.item(cmd, rest)
	case "items":
		st.items()
	case "scan":
		st.scan()
	case "read":
		st.readBlock(rest)
	case "write":
		st.writeBlock(rest)
	case "commit":
		st.commit(strings.Join(rest, " "))
	case "pending":
		st.pendingList()
	case "retry":
		st.retry(rest)
	default:
		st.printf("Unknown command %q, type 'help'\n", args[0])
	}
	return false
}

// active returns the current session or prints why there is none.
func (st *station) active() *session.Session {
	sess := st.session()
	if sess == nil {
		st.printf("No active session\n")
	}
	return sess
}

func (st *station) status() {
	state, n := st.trigger.State()
	st.printf("Reader: %s\n", st.ctrl.State())
	if n > 0 {
		st.printf("Camera: %s (%d)\n", state, n)
	} else {
		st.printf("Camera: %s\n", state)
	}
	if st.trigger.Continuous() {
		st.printf("Continuous capture: on\n")
	}
	if sess := st.session(); sess != nil {
		st.printf("Session: %s\n", sess.ID)
		if u, ok := sess.User(); ok {
			st.printf("User: %s (#%d)\n", u.Name, u.UserID)
		}
	}
	if p := st.rec.Pending(); len(p) > 0 {
		st.printf("Pending submissions: %d\n", len(p))
	}
}

func (st *station) identifyAuto() {
	ctx, cancel := st.requestCtx()
	defer cancel()
	if err := st.trigger.EnableAuto(ctx); err != nil {
		st.printf("%v\n", err)
		return
	}
	st.rearm()
	st.printf("Look at the camera\n")
}

func (st *station) continuous(args []string) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		st.printf("Usage: continuous on|off\n")
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	if err := st.trigger.SetContinuous(ctx, args[0] == "on"); err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("Continuous capture %s\n", args[0])
}

func (st *station) camera(args []string) {
	ctx, cancel := st.requestCtx()
	defer cancel()

	var err error
	switch strings.ToLower(strings.Join(args, " ")) {
	case "":
		var s api.VisionSettings
		if s, err = st.api.VisionSettings(ctx); err == nil {
			st.printf("Show features: %t\nAuto capture: %t\n", s.ShowFeatures, s.AutoCapture)
		}
	case "rotate cw", "rotate ccw":
		rotate := st.api.RotateCW
		if strings.EqualFold(args[1], "ccw") {
			rotate = st.api.RotateCCW
		}
		var angle int
		if angle, err = rotate(ctx); err == nil {
			st.printf("Rotation: %d\n", angle)
		}
	case "flip h", "flip v":
		flip := st.api.FlipH
		if strings.EqualFold(args[1], "v") {
			flip = st.api.FlipV
		}
		var on bool
		if on, err = flip(ctx); err == nil {
			st.printf("Flip %s: %t\n", strings.ToLower(args[1]), on)
		}
	case "features on", "features off":
		var on bool
		if on, err = st.api.SetShowFeatures(ctx, strings.EqualFold(args[1], "on")); err == nil {
			st.printf("Show features: %t\n", on)
		}
	default:
		st.printf("Usage: camera [rotate cw|ccw | flip h|v | features on|off]\n")
		return
	}
	if err != nil {
		st.printf("%v\n", err)
	}
}

func (st *station) user(sc *bufio.Scanner, args []string) {
	if len(args) == 0 {
		st.printf("Usage: user <name>\n")
		return
	}
	name := strings.Join(args, " ")
	err := st.identify(st.ctx, name, false)
	if err == nil {
		return
	}
	if !errors.Is(err, errUserNotFound) {
		st.printf("%v\n", err)
		return
	}
	if !confirm(sc, st.out, fmt.Sprintf("User %q not found. Create it?", models.NormalizeName(name))) {
		return
	}
	if err := st.identify(st.ctx, name, true); err != nil {
		st.printf("%v\n", err)
	}
}

func (st *station) users() {
	ctx, cancel := st.requestCtx()
	defer cancel()
	users, err := st.api.Users(ctx)
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	for _, u := range users {
		st.printf("%4d  %s\n", u.UserID, u.Name)
	}
}

func (st *station) renameUser(args []string) {
	if len(args) < 2 {
		st.printf("Usage: rename <user_id> <name>\n")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		st.printf("Invalid user id %q\n", args[0])
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	u, err := st.api.UpdateUser(ctx, id, strings.Join(args[1:], " "))
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("User #%d renamed to %s\n", u.UserID, u.Name)
}

func (st *station) deleteUser(sc *bufio.Scanner, args []string) {
	if len(args) != 1 {
		st.printf("Usage: deluser <user_id>\n")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		st.printf("Invalid user id %q\n", args[0])
		return
	}
	if sess := st.session(); sess != nil {
		if u, ok := sess.User(); ok && u.UserID == id {
			st.printf("User #%d is the session user; commit first\n", id)
			return
		}
	}
	if !confirm(sc, st.out, fmt.Sprintf("Delete user #%d and its history?", id)) {
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	if err := st.api.DeleteUser(ctx, id); err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("User #%d deleted\n", id)
}

func (st *station) boxes() {
	sess := st.active()
	if sess == nil {
		return
	}
	st.printf("In session:\n")
	for _, b := range sess.InSession() {
		st.printBox(b)
	}
	st.printf("Available:\n")
	for _, b := range sess.Available() {
		st.printBox(b)
	}
}

func (st *station) printBox(b models.Container) {
	name := b.Name
	if name == "" {
		name = "(unknown tag)"
	}
	st.printf("  %s  %s\n", b.UID, name)
	for _, it := range b.Items {
		st.printf("      #%d %s x%d\n", it.ItemID, it.Name, it.Quantity)
	}
}

func (st *station) selectBox(args []string) {
	if len(args) != 1 {
		st.printf("Usage: select <uid>\n")
		return
	}
	sess := st.active()
	if sess == nil {
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	box, err := sess.SelectAvailable(ctx, models.UID(args[0]))
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printBox(box)
}

func (st *station) removeBox(args []string) {
	if len(args) != 1 {
		st.printf("Usage: remove <uid>\n")
		return
	}
	sess := st.active()
	if sess == nil {
		return
	}
	if !sess.RemoveFromSession(models.UID(args[0])) {
		st.printf("Box %s is not in the session\n", models.NormalizeUID(args[0]))
		return
	}
	st.printf("Box %s removed\n", models.NormalizeUID(args[0]))
}

func (st *station) register(sc *bufio.Scanner, args []string) {
	if len(args) < 2 {
		st.printf("Usage: register <uid> <name>\n")
		return
	}
	uid := models.NormalizeUID(args[0])
	name := strings.Join(args[1:], " ")
	items := promptBoxItems(sc, st.out)

	ctx, cancel := st.requestCtx()
	defer cancel()
	if err := st.api.CreateContainer(ctx, uid, name, items); err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("Box %s registered with %d items\n", uid, len(items))
}

func (st *station) item(cmd string, args []string) {
	if len(args) != 1 {
		st.printf("Usage: %s <item_id>\n", cmd)
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		st.printf("Invalid item id %q\n", args[0])
		return
	}
	sess := st.active()
	if sess == nil {
		return
	}

	var e models.SessionItemEntry
	switch cmd {
	case "add":
		e, err = sess.AddItem(id)
	case "inc":
		e, err = sess.Increment(id)
	case "dec":
		e, err = sess.Decrement(id)
	case "drop":
		if !sess.DropItem(id) {
			st.printf("Item %d is not listed\n", id)
			return
		}
		st.printf("Item %d dropped\n", id)
		return
	}
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("#%d %s: %d\n", e.ItemID, e.Name, e.Quantity)
}

func (st *station) items() {
	sess := st.active()
	if sess == nil {
		return
	}
	if _, ok := sess.User(); !ok {
		st.printf("%v\n", session.ErrNoUser)
		return
	}
	for _, e := range sess.Items() {
		st.printf("  #%d %s: %d\n", e.ItemID, e.Name, e.Quantity)
	}
}

func (st *station) scan() {
	ctx, cancel := st.requestCtx()
	defer cancel()
	uid, ok, err := st.ctrl.ScanOnce(ctx)
	switch {
	case err != nil:
		st.printf("%v\n", err)
	case !ok:
		st.printf("No tag on the reader\n")
	default:
		st.printf("Tag %s\n", uid)
	}
}

func (st *station) readBlock(args []string) {
	if len(args) != 1 {
		st.printf("Usage: read <block>\n")
		return
	}
	block, err := strconv.Atoi(args[0])
	if err != nil {
		st.printf("Invalid block %q\n", args[0])
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	data, err := st.ctrl.ReadBlock(ctx, block)
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("Block %d: % x %q\n", block, data, strings.TrimRight(string(data), "\x00"))
}

func (st *station) writeBlock(args []string) {
	if len(args) < 2 {
		st.printf("Usage: write <block> <text>\n")
		return
	}
	block, err := strconv.Atoi(args[0])
	if err != nil {
		st.printf("Invalid block %q\n", args[0])
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	if err := st.ctrl.WriteBlock(ctx, block, []byte(strings.Join(args[1:], " "))); err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("Block %d written\n", block)
}

// commit submits the session's inventory change and starts a new session.
// When the backend does not take the entry it is parked in the pending store
// and the session stays open; a successful 'retry' of it closes the session.
func (st *station) commit(comment string) {
	sess := st.active()
	if sess == nil {
		return
	}
	user, ok := sess.User()
	if !ok {
		st.printf("%v\n", session.ErrNoUser)
		return
	}
	st.mu.Lock()
	parked := st.parked
	st.mu.Unlock()
	if parked != "" {
		st.printf("Session already kept as pending %s; use 'retry %s'\n", parked, parked)
		return
	}
	before, after := sess.Snapshot()

	ctx, cancel := st.requestCtx()
	entry, err := st.rec.Submit(ctx, user.UserID, before, after, comment)
	cancel()

	var se *reconcile.SubmitError
	switch {
	case errors.As(err, &se):
		st.printf("Submission failed: %v\n", se.Err)
		st.printChanges(se.Entry)
		st.printf("Kept as pending %s; use 'retry %s'\n", se.Entry.SubmissionID, se.Entry.SubmissionID)
		st.mu.Lock()
		st.parked = se.Entry.SubmissionID
		st.mu.Unlock()
		return
	case err != nil:
		st.printf("%v\n", err)
		return
	}

	st.printf("Logged %d added, %d returned for %s\n", len(entry.ItemsAdded), len(entry.ItemsReturned), user.Name)
	st.printChanges(entry)
	st.restartSession()
}

func (st *station) printChanges(entry models.LogEntry) {
	for _, c := range entry.ItemsAdded {
		st.printf("  +%d #%d\n", c.Quantity, c.ItemID)
	}
	for _, c := range entry.ItemsReturned {
		st.printf("  -%d #%d\n", c.Quantity, c.ItemID)
	}
}

func (st *station) restartSession() {
	st.endSession()
	if err := st.startSession(); err != nil {
		st.printf("Failed to start a new session: %v\n", err)
	}
}

func (st *station) pendingList() {
	entries := st.rec.Pending()
	if len(entries) == 0 {
		st.printf("No pending submissions\n")
		return
	}
	for _, e := range entries {
		st.printf("  %s  user #%d  +%d -%d  %s\n", e.SubmissionID, e.UserID, len(e.ItemsAdded), len(e.ItemsReturned), e.Comment)
	}
}

func (st *station) retry(args []string) {
	if len(args) != 1 {
		st.printf("Usage: retry <id>\n")
		return
	}
	ctx, cancel := st.requestCtx()
	defer cancel()
	entry, err := st.rec.Retry(ctx, args[0])
	if err != nil {
		st.printf("%v\n", err)
		return
	}
	st.printf("Submission %s logged\n", entry.SubmissionID)

	st.mu.Lock()
	own := st.parked != "" && st.parked == entry.SubmissionID
	st.mu.Unlock()
	if own {
		st.restartSession()
	}
}
