package hostapi

import (
	"sort"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/arkanvault/corevault/internal/permission"
	"github.com/arkanvault/corevault/internal/vaulterr"
)

// WorkspaceEventKind is the closed set of workspace event kinds a plugin
// can subscribe to (spec §4.H workspace.*).
type WorkspaceEventKind string

const (
	EventFileOpened      WorkspaceEventKind = "file_opened"
	EventFileClosed      WorkspaceEventKind = "file_closed"
	EventFileChanged     WorkspaceEventKind = "file_changed"
	EventViewCreated     WorkspaceEventKind = "view_created"
	EventViewDestroyed   WorkspaceEventKind = "view_destroyed"
	EventLayoutChanged   WorkspaceEventKind = "layout_changed"
	EventCommandExecuted WorkspaceEventKind = "command_executed"
)

// WorkspaceEvent is delivered to subscribers of a WorkspaceEventKind.
type WorkspaceEvent struct {
	Kind WorkspaceEventKind
	Data any
}

// View is a single open editor/side view.
type View struct {
	ID       string
	Path     string
	PluginID string // owner, for plugin-created custom views; empty for notes
}

// Modal describes a plugin-requested modal dialog.
type Modal struct {
	ID      string
	Title   string
	Body    string
	Buttons []string
}

// StatusBarItem and RibbonIcon are small chrome contributions a plugin
// registers into the host UI.
type StatusBarItem struct {
	ID       string
	PluginID string
	Text     string
}

type RibbonIcon struct {
	ID       string
	PluginID string
	Icon     string
	Tooltip  string
	Command  string
}

// Command is a host-invokable action registered by a plugin.
type Command struct {
	ID       string
	PluginID string
	Name     string
	Run      func() error
}

// WorkspaceAPI implements the workspace.* namespace: active-file tracking,
// view/modal lifecycle, status bar and ribbon contributions, command
// registration, and an event bus plugins subscribe to. Also surfaces
// clipboard read/write, a supplemented feature gated behind the
// Clipboard{Read,Write} capabilities already defined in internal/permission.
//
// Grounded on spec §4.H's workspace.* operation list; there is no teacher
// analogue (arkan-vlt is a headless CLI with no UI shell), so the shape
// follows the spec directly, using plain maps and a mutex in the same
// style internal/permission and internal/taskindex already use for
// in-memory state guarded by a single lock.
type WorkspaceAPI struct {
	perms *permission.Manager

	mu           sync.Mutex
	activeFile   string
	openFiles    map[string]bool
	views        map[string]View
	modals       map[string]Modal
	sidebarOpen  bool
	statusItems  map[string]StatusBarItem
	ribbonIcons  map[string]RibbonIcon
	commands     map[string]Command
	subscribers  map[WorkspaceEventKind]map[string]func(WorkspaceEvent)
	nextHandleID uint64
}

// NewWorkspaceAPI returns an empty WorkspaceAPI.
func NewWorkspaceAPI(perms *permission.Manager) *WorkspaceAPI {
	return &WorkspaceAPI{
		perms:       perms,
		openFiles:   make(map[string]bool),
		views:       make(map[string]View),
		modals:      make(map[string]Modal),
		sidebarOpen: true,
		statusItems: make(map[string]StatusBarItem),
		ribbonIcons: make(map[string]RibbonIcon),
		commands:    make(map[string]Command),
		subscribers: make(map[WorkspaceEventKind]map[string]func(WorkspaceEvent)),
	}
}

func (w *WorkspaceAPI) requireCap(pluginID string, kind permission.Kind) error {
	return w.perms.RequireCapability(pluginID, permission.Capability{Kind: kind})
}

func (w *WorkspaceAPI) nextID() string {
	w.nextHandleID++
	return itoa(w.nextHandleID)
}

// emit notifies every subscriber of kind. Caller must not hold w.mu.
func (w *WorkspaceAPI) emit(ev WorkspaceEvent) {
	w.mu.Lock()
	handlers := make([]func(WorkspaceEvent), 0, len(w.subscribers[ev.Kind]))
	for _, h := range w.subscribers[ev.Kind] {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// GetActiveFile returns the vault-relative path of the currently focused
// file, or "" if none is open.
func (w *WorkspaceAPI) GetActiveFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeFile
}

// OpenFile marks path open and active, emitting FileOpened.
func (w *WorkspaceAPI) OpenFile(pluginID, path string) error {
	if err := w.requireCap(pluginID, permission.WorkspaceWrite); err != nil {
		return err
	}
	w.mu.Lock()
	w.openFiles[path] = true
	w.activeFile = path
	w.mu.Unlock()
	w.emit(WorkspaceEvent{Kind: EventFileOpened, Data: path})
	return nil
}

// CloseFile marks path closed, clearing the active file if it was active.
func (w *WorkspaceAPI) CloseFile(pluginID, path string) error {
	if err := w.requireCap(pluginID, permission.WorkspaceWrite); err != nil {
		return err
	}
	w.mu.Lock()
	delete(w.openFiles, path)
	if w.activeFile == path {
		w.activeFile = ""
	}
	w.mu.Unlock()
	w.emit(WorkspaceEvent{Kind: EventFileClosed, Data: path})
	return nil
}

// CreateView registers a new plugin-owned view bound to path and returns
// its id.
func (w *WorkspaceAPI) CreateView(pluginID, path string) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceCreate); err != nil {
		return "", err
	}
	w.mu.Lock()
	id := w.nextID()
	w.views[id] = View{ID: id, Path: path, PluginID: pluginID}
	w.mu.Unlock()
	w.emit(WorkspaceEvent{Kind: EventViewCreated, Data: id})
	return id, nil
}

// DestroyView removes a previously created view.
func (w *WorkspaceAPI) DestroyView(pluginID, viewID string) error {
	if err := w.requireCap(pluginID, permission.WorkspaceWrite); err != nil {
		return err
	}
	w.mu.Lock()
	if _, ok := w.views[viewID]; !ok {
		w.mu.Unlock()
		return vaulterr.New(vaulterr.NotFound, "no such view: %s", viewID)
	}
	delete(w.views, viewID)
	w.mu.Unlock()
	w.emit(WorkspaceEvent{Kind: EventViewDestroyed, Data: viewID})
	return nil
}

// ToggleSidebar flips the sidebar's visibility and returns the new state.
func (w *WorkspaceAPI) ToggleSidebar(pluginID string) (bool, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceWrite); err != nil {
		return false, err
	}
	w.mu.Lock()
	w.sidebarOpen = !w.sidebarOpen
	open := w.sidebarOpen
	w.mu.Unlock()
	w.emit(WorkspaceEvent{Kind: EventLayoutChanged, Data: open})
	return open, nil
}

// ShowNotice is a fire-and-forget toast. It only performs the
// WorkspaceWrite capability check (returning PermissionDenied without
// it); message is not stored and no workspace event is emitted.
func (w *WorkspaceAPI) ShowNotice(pluginID, message string) error {
	return w.requireCap(pluginID, permission.WorkspaceWrite)
}

// ShowModal registers a modal and returns its id; CloseModal removes it.
func (w *WorkspaceAPI) ShowModal(pluginID string, m Modal) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceCreate); err != nil {
		return "", err
	}
	w.mu.Lock()
	m.ID = w.nextID()
	w.modals[m.ID] = m
	w.mu.Unlock()
	return m.ID, nil
}

// CloseModal removes a previously shown modal.
func (w *WorkspaceAPI) CloseModal(pluginID, modalID string) error {
	if err := w.requireCap(pluginID, permission.WorkspaceWrite); err != nil {
		return err
	}
	w.mu.Lock()
	if _, ok := w.modals[modalID]; !ok {
		w.mu.Unlock()
		return vaulterr.New(vaulterr.NotFound, "no such modal: %s", modalID)
	}
	delete(w.modals, modalID)
	w.mu.Unlock()
	return nil
}

// AddStatusBarItem registers a status bar contribution and returns its id.
func (w *WorkspaceAPI) AddStatusBarItem(pluginID, text string) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceCreate); err != nil {
		return "", err
	}
	w.mu.Lock()
	id := w.nextID()
	w.statusItems[id] = StatusBarItem{ID: id, PluginID: pluginID, Text: text}
	w.mu.Unlock()
	return id, nil
}

// RemoveStatusBarItem removes a status bar contribution by id.
func (w *WorkspaceAPI) RemoveStatusBarItem(pluginID, id string) error {
	return w.removeOwned(pluginID, id, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		item, ok := w.statusItems[id]
		if ok && item.PluginID == pluginID {
			delete(w.statusItems, id)
		}
		return item.PluginID, ok
	})
}

// AddRibbonIcon registers a ribbon icon bound to command and returns its id.
func (w *WorkspaceAPI) AddRibbonIcon(pluginID, icon, tooltip, command string) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceCreate); err != nil {
		return "", err
	}
	w.mu.Lock()
	id := w.nextID()
	w.ribbonIcons[id] = RibbonIcon{ID: id, PluginID: pluginID, Icon: icon, Tooltip: tooltip, Command: command}
	w.mu.Unlock()
	return id, nil
}

// RemoveRibbonIcon removes a ribbon icon by id.
func (w *WorkspaceAPI) RemoveRibbonIcon(pluginID, id string) error {
	return w.removeOwned(pluginID, id, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		icon, ok := w.ribbonIcons[id]
		if ok && icon.PluginID == pluginID {
			delete(w.ribbonIcons, id)
		}
		return icon.PluginID, ok
	})
}

// removeOwned is a small shared guard: it looks up and deletes an owned
// resource, returning NotFound if absent and PermissionDenied if another
// plugin owns it.
func (w *WorkspaceAPI) removeOwned(pluginID, id string, lookupAndDelete func() (ownerID string, ok bool)) error {
	ownerID, ok := lookupAndDelete()
	if !ok {
		return vaulterr.New(vaulterr.NotFound, "no such item: %s", id)
	}
	if ownerID != pluginID {
		return vaulterr.New(vaulterr.PermissionDenied, "plugin %s does not own %s", pluginID, id)
	}
	return nil
}

// RegisterCommand adds a command a plugin exposes to the host command
// palette and returns its id.
func (w *WorkspaceAPI) RegisterCommand(pluginID, name string, run func() error) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceCreate); err != nil {
		return "", err
	}
	w.mu.Lock()
	id := w.nextID()
	w.commands[id] = Command{ID: id, PluginID: pluginID, Name: name, Run: run}
	w.mu.Unlock()
	return id, nil
}

// UnregisterCommand removes a previously registered command.
func (w *WorkspaceAPI) UnregisterCommand(pluginID, id string) error {
	return w.removeOwned(pluginID, id, func() (string, bool) {
		w.mu.Lock()
		defer w.mu.Unlock()
		cmd, ok := w.commands[id]
		if ok && cmd.PluginID == pluginID {
			delete(w.commands, id)
		}
		return cmd.PluginID, ok
	})
}

// ExecuteCommand runs a registered command by id and emits
// CommandExecuted.
func (w *WorkspaceAPI) ExecuteCommand(id string) error {
	w.mu.Lock()
	cmd, ok := w.commands[id]
	w.mu.Unlock()
	if !ok {
		return vaulterr.New(vaulterr.NotFound, "no such command: %s", id)
	}
	err := cmd.Run()
	w.emit(WorkspaceEvent{Kind: EventCommandExecuted, Data: id})
	return err
}

// ListCommands returns every registered command id, sorted.
func (w *WorkspaceAPI) ListCommands() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.commands))
	for id := range w.commands {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubscribeEvent registers handler for kind and returns a subscription id.
func (w *WorkspaceAPI) SubscribeEvent(pluginID string, kind WorkspaceEventKind, handler func(WorkspaceEvent)) (string, error) {
	if err := w.requireCap(pluginID, permission.WorkspaceRead); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID()
	if w.subscribers[kind] == nil {
		w.subscribers[kind] = make(map[string]func(WorkspaceEvent))
	}
	w.subscribers[kind][id] = handler
	return id, nil
}

// UnsubscribeEvent cancels a subscription created by SubscribeEvent.
func (w *WorkspaceAPI) UnsubscribeEvent(kind WorkspaceEventKind, subscriptionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.subscribers[kind][subscriptionID]; !ok {
		return vaulterr.New(vaulterr.NotFound, "no such subscription: %s", subscriptionID)
	}
	delete(w.subscribers[kind], subscriptionID)
	return nil
}

// ReadClipboard returns the host clipboard's current text contents.
// Supplements spec §4.H (not itself named there) using the ClipboardRead
// capability already defined in internal/permission.
func (w *WorkspaceAPI) ReadClipboard(pluginID string) (string, error) {
	if err := w.requireCap(pluginID, permission.ClipboardRead); err != nil {
		return "", err
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", vaulterr.Wrap(vaulterr.IoError, err, "read clipboard")
	}
	return text, nil
}

// WriteClipboard overwrites the host clipboard's text contents.
func (w *WorkspaceAPI) WriteClipboard(pluginID, text string) error {
	if err := w.requireCap(pluginID, permission.ClipboardWrite); err != nil {
		return err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return vaulterr.Wrap(vaulterr.IoError, err, "write clipboard")
	}
	return nil
}
