package browser

// CommandKind groups catalogue commands by what they do to the target.
type CommandKind string

const (
	KindLifecycle  CommandKind = "lifecycle"
	KindNavigation CommandKind = "navigation"
	KindAction     CommandKind = "action"
	KindProtocol   CommandKind = "protocol"
	KindElement    CommandKind = "element"
	KindState      CommandKind = "state"
	KindCookie     CommandKind = "cookie"
	KindProperty   CommandKind = "property"
	KindSnapshot   CommandKind = "snapshot"
	KindUtility    CommandKind = "utility"
)

// Lifecycle
const (
	CommandInit     = "init"
	CommandEnd      = "end"
	CommandEndAll   = "endAll"
	CommandSession  = "session"
	CommandSessions = "sessions"
)

// Snapshot capture
const (
	CommandScreenshot     = "screenshot"
	CommandSaveScreenshot = "saveScreenshot"
)

// Navigation
const (
	CommandURL       = "url"
	CommandBack      = "back"
	CommandForward   = "forward"
	CommandRefresh   = "refresh"
	CommandNewWindow = "newWindow"
	CommandSwitchTab = "switchTab"
	CommandClose     = "close"
)

// Element interaction and scripting
const (
	CommandClick               = "click"
	CommandDoubleClick         = "doubleClick"
	CommandLeftClick           = "leftClick"
	CommandRightClick          = "rightClick"
	CommandMiddleClick         = "middleClick"
	CommandMoveToObject        = "moveToObject"
	CommandSetValue            = "setValue"
	CommandAddValue            = "addValue"
	CommandClearElement        = "clearElement"
	CommandKeys                = "keys"
	CommandScroll              = "scroll"
	CommandSubmitForm          = "submitForm"
	CommandSelectByIndex       = "selectByIndex"
	CommandSelectByValue       = "selectByValue"
	CommandSelectByVisibleText = "selectByVisibleText"
	CommandDragAndDrop         = "dragAndDrop"
	CommandChooseFile          = "chooseFile"
	CommandAlertAccept         = "alertAccept"
	CommandAlertDismiss        = "alertDismiss"
	CommandExecute             = "execute"
	CommandExecuteAsync        = "executeAsync"
	CommandPause               = "pause"
	CommandSetViewportSize     = "setViewportSize"
	CommandWaitUntil           = "waitUntil"
	CommandWaitForExist        = "waitForExist"
	CommandWaitForVisible      = "waitForVisible"
	CommandWaitForEnabled      = "waitForEnabled"
	CommandWaitForSelected     = "waitForSelected"
	CommandWaitForText         = "waitForText"
	CommandWaitForValue        = "waitForValue"
)

// Protocol queries
const (
	CommandElement       = "element"
	CommandElementActive = "elementActive"
	CommandElements      = "elements"
	CommandTitle         = "title"
	CommandWindowHandle  = "windowHandle"
	CommandWindowHandles = "windowHandles"

	CommandElementIDAttribute      = "elementIdAttribute"
	CommandElementIDClear          = "elementIdClear"
	CommandElementIDClick          = "elementIdClick"
	CommandElementIDCSSProperty    = "elementIdCssProperty"
	CommandElementIDDisplayed      = "elementIdDisplayed"
	CommandElementIDElement        = "elementIdElement"
	CommandElementIDElements       = "elementIdElements"
	CommandElementIDEnabled        = "elementIdEnabled"
	CommandElementIDLocation       = "elementIdLocation"
	CommandElementIDLocationInView = "elementIdLocationInView"
	CommandElementIDName           = "elementIdName"
	CommandElementIDSelected       = "elementIdSelected"
	CommandElementIDSize           = "elementIdSize"
	CommandElementIDText           = "elementIdText"
	CommandElementIDValue          = "elementIdValue"
)

// State queries
const (
	CommandIsEnabled               = "isEnabled"
	CommandIsExisting              = "isExisting"
	CommandIsSelected              = "isSelected"
	CommandIsVisible               = "isVisible"
	CommandIsVisibleWithinViewport = "isVisibleWithinViewport"
)

// Cookies
const (
	CommandDeleteCookie = "deleteCookie"
	CommandGetCookie    = "getCookie"
	CommandSetCookie    = "setCookie"
	CommandCookie       = "cookie"
)

// Element and page property queries
const (
	CommandGetAttribute      = "getAttribute"
	CommandGetCSSProperty    = "getCssProperty"
	CommandGetElementSize    = "getElementSize"
	CommandGetHTML           = "getHTML"
	CommandGetLocation       = "getLocation"
	CommandGetLocationInView = "getLocationInView"
	CommandGetSource         = "getSource"
	CommandGetTagName        = "getTagName"
	CommandGetText           = "getText"
	CommandGetTitle          = "getTitle"
	CommandGetURL            = "getUrl"
	CommandGetValue          = "getValue"
)

// Settings and introspection without side effects
const (
	CommandTimeouts             = "timeouts"
	CommandTimeoutsAsyncScript  = "timeoutsAsyncScript"
	CommandTimeoutsImplicitWait = "timeoutsImplicitWait"
	CommandWindowHandlePosition = "windowHandlePosition"
	CommandGetCommandHistory    = "getCommandHistory"
	CommandGetTabIDs            = "getTabIds"
	CommandGetViewportSize      = "getViewportSize"
)

// Catalogue is the fixed set of commands every Session adapter understands.
var Catalogue = map[string]CommandKind{
	CommandInit:     KindLifecycle,
	CommandEnd:      KindLifecycle,
	CommandEndAll:   KindLifecycle,
	CommandSession:  KindLifecycle,
	CommandSessions: KindLifecycle,

	CommandScreenshot:     KindSnapshot,
	CommandSaveScreenshot: KindSnapshot,

	CommandURL:       KindNavigation,
	CommandBack:      KindNavigation,
	CommandForward:   KindNavigation,
	CommandRefresh:   KindNavigation,
	CommandNewWindow: KindNavigation,
	CommandSwitchTab: KindNavigation,
	CommandClose:     KindNavigation,

	CommandClick:               KindAction,
	CommandDoubleClick:         KindAction,
	CommandLeftClick:           KindAction,
	CommandRightClick:          KindAction,
	CommandMiddleClick:         KindAction,
	CommandMoveToObject:        KindAction,
	CommandSetValue:            KindAction,
	CommandAddValue:            KindAction,
	CommandClearElement:        KindAction,
	CommandKeys:                KindAction,
	CommandScroll:              KindAction,
	CommandSubmitForm:          KindAction,
	CommandSelectByIndex:       KindAction,
	CommandSelectByValue:       KindAction,
	CommandSelectByVisibleText: KindAction,
	CommandDragAndDrop:         KindAction,
	CommandChooseFile:          KindAction,
	CommandAlertAccept:         KindAction,
	CommandAlertDismiss:        KindAction,
	CommandExecute:             KindAction,
	CommandExecuteAsync:        KindAction,
	CommandPause:               KindAction,
	CommandSetViewportSize:     KindAction,
	CommandWaitUntil:           KindAction,
	CommandWaitForExist:        KindAction,
	CommandWaitForVisible:      KindAction,
	CommandWaitForEnabled:      KindAction,
	CommandWaitForSelected:     KindAction,
	CommandWaitForText:         KindAction,
	CommandWaitForValue:        KindAction,

	CommandElement:                 KindProtocol,
	CommandElementActive:           KindProtocol,
	CommandElements:                KindProtocol,
	CommandTitle:                   KindProtocol,
	CommandWindowHandle:            KindProtocol,
	CommandWindowHandles:           KindProtocol,
	CommandElementIDAttribute:      KindElement,
	CommandElementIDClear:          KindElement,
	CommandElementIDClick:          KindElement,
	CommandElementIDCSSProperty:    KindElement,
	CommandElementIDDisplayed:      KindElement,
	CommandElementIDElement:        KindElement,
	CommandElementIDElements:       KindElement,
	CommandElementIDEnabled:        KindElement,
	CommandElementIDLocation:       KindElement,
	CommandElementIDLocationInView: KindElement,
	CommandElementIDName:           KindElement,
	CommandElementIDSelected:       KindElement,
	CommandElementIDSize:           KindElement,
	CommandElementIDText:           KindElement,
	CommandElementIDValue:          KindElement,

	CommandIsEnabled:               KindState,
	CommandIsExisting:              KindState,
	CommandIsSelected:              KindState,
	CommandIsVisible:               KindState,
	CommandIsVisibleWithinViewport: KindState,

	CommandDeleteCookie: KindCookie,
	CommandGetCookie:    KindCookie,
	CommandSetCookie:    KindCookie,
	CommandCookie:       KindCookie,

	CommandGetAttribute:      KindProperty,
	CommandGetCSSProperty:    KindProperty,
	CommandGetElementSize:    KindProperty,
	CommandGetHTML:           KindProperty,
	CommandGetLocation:       KindProperty,
	CommandGetLocationInView: KindProperty,
	CommandGetSource:         KindProperty,
	CommandGetTagName:        KindProperty,
	CommandGetText:           KindProperty,
	CommandGetTitle:          KindProperty,
	CommandGetURL:            KindProperty,
	CommandGetValue:          KindProperty,

	CommandTimeouts:             KindUtility,
	CommandTimeoutsAsyncScript:  KindUtility,
	CommandTimeoutsImplicitWait: KindUtility,
	CommandWindowHandlePosition: KindUtility,
	CommandGetCommandHistory:    KindUtility,
	CommandGetTabIDs:            KindUtility,
	CommandGetViewportSize:      KindUtility,
}

// Lookup returns the kind of a catalogue command.
func Lookup(name string) (CommandKind, bool) {
	kind, ok := Catalogue[name]
	return kind, ok
}
