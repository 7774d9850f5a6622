package main

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// Vi mode constants
const (
	ViModeInsert      = "insert"
	ViModeNormal      = "normal"
	ViModeVisual      = "visual"
	ViModeCommandLine = "command"
	ViModeLearning    = "learning"
)

// Placeholder text constants
const (
	PlaceholderDefault = "Type your message here. Enter to send, ESC to exit insert mode"
)

// PromptComponent represents the user input text area
type PromptComponent struct {
	TextArea       textarea.Model
	Placeholder    string
	Height         int
	Width          int
	MaxHeight      int // Maximum height (50% of screen height)
	ScreenHeight   int // Total screen height
	Style          lipgloss.Style
	ViCurrentMode  string // Current vi mode: insert, normal, visual, or command
	viPendingOp    string // Track pending operation (e.g., "d" or "c")
	viNormalKeyMap textarea.KeyMap
	viInsertKeyMap textarea.KeyMap
}

// NewPromptComponent creates a new prompt component
func NewPromptComponent(width, height int) PromptComponent {
	ta := textarea.New()
	ta.Placeholder = PlaceholderDefault
	ta.ShowLineNumbers = false
	ta.Focus()

	// Set the dimensions
	ta.SetWidth(width - 2) // Account for borders
	ta.SetHeight(height)   // Account for borders

	// Create a vi normal mode keymap (navigation only, no text input)
	viNormalKeyMap := textarea.KeyMap{
		CharacterBackward:          key.NewBinding(key.WithKeys("h", "left")),
		CharacterForward:           key.NewBinding(key.WithKeys("l", "right")),
		DeleteAfterCursor:          key.NewBinding(key.WithKeys("D")),
		DeleteBeforeCursor:         key.NewBinding(key.WithKeys("d0")),
		DeleteCharacterBackward:    key.NewBinding(key.WithKeys("X")),
		DeleteCharacterForward:     key.NewBinding(key.WithKeys("x")),
		DeleteWordBackward:         key.NewBinding(key.WithKeys("db")),
		DeleteWordForward:          key.NewBinding(key.WithKeys("dw")),
		InsertNewline:              key.NewBinding(key.WithKeys()), // Disabled in normal mode
		LineEnd:                    key.NewBinding(key.WithKeys("$", "end")),
		LineStart:                  key.NewBinding(key.WithKeys("0", "^", "home")),
		LineNext:                   key.NewBinding(key.WithKeys("j", "down")),
		LinePrevious:               key.NewBinding(key.WithKeys("k", "up")),
		Paste:                      key.NewBinding(key.WithKeys("p")),
		WordBackward:               key.NewBinding(key.WithKeys("b")),
		WordForward:                key.NewBinding(key.WithKeys("w")),
		InputBegin:                 key.NewBinding(key.WithKeys("gg")),
		InputEnd:                   key.NewBinding(key.WithKeys("G")),
		UppercaseWordForward:       key.NewBinding(key.WithKeys()), // Disabled
		LowercaseWordForward:       key.NewBinding(key.WithKeys()), // Disabled
		CapitalizeWordForward:      key.NewBinding(key.WithKeys()), // Disabled
		TransposeCharacterBackward: key.NewBinding(key.WithKeys()), // Disabled
	}

	// Create a vi insert mode keymap (similar to normal editing)
	viInsertKeyMap := textarea.KeyMap{
		CharacterBackward:          key.NewBinding(key.WithKeys("left")),
		CharacterForward:           key.NewBinding(key.WithKeys("right")),
		DeleteAfterCursor:          key.NewBinding(key.WithKeys("ctrl+k")),
		DeleteBeforeCursor:         key.NewBinding(key.WithKeys("ctrl+u")),
		DeleteCharacterBackward:    key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
		DeleteCharacterForward:     key.NewBinding(key.WithKeys("delete")),
		DeleteWordBackward:         key.NewBinding(key.WithKeys("ctrl+w")),
		DeleteWordForward:          key.NewBinding(key.WithKeys("alt+d")),
		InsertNewline:              key.NewBinding(key.WithKeys("enter", "ctrl+m")),
		LineEnd:                    key.NewBinding(key.WithKeys("end")),
		LineStart:                  key.NewBinding(key.WithKeys("home")),
		LineNext:                   key.NewBinding(key.WithKeys("down")),
		LinePrevious:               key.NewBinding(key.WithKeys("up")),
		Paste:                      key.NewBinding(key.WithKeys("ctrl+v")),
		WordBackward:               key.NewBinding(key.WithKeys("alt+left")),
		WordForward:                key.NewBinding(key.WithKeys("alt+right")),
		InputBegin:                 key.NewBinding(key.WithKeys("ctrl+home")),
		InputEnd:                   key.NewBinding(key.WithKeys("ctrl+end")),
		UppercaseWordForward:       key.NewBinding(key.WithKeys("ctrl+alt+u")),
		LowercaseWordForward:       key.NewBinding(key.WithKeys("ctrl+alt+l")),
		CapitalizeWordForward:      key.NewBinding(key.WithKeys("ctrl+alt+c")),
		TransposeCharacterBackward: key.NewBinding(key.WithKeys("ctrl+t")),
	}

	prompt := PromptComponent{
		TextArea:       ta,
		Height:         height,
		Width:          width,
		ViCurrentMode:  ViModeInsert, // Start in insert mode
		viPendingOp:    "",           // No pending operation
		viNormalKeyMap: viNormalKeyMap,
		viInsertKeyMap: viInsertKeyMap,
		Style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(globalTheme.PromptOnBorder). // Use theme's on border for insert mode
			Width(width).
			Height(height),
	}

	// Set insert mode keymap
	prompt.TextArea.KeyMap = viInsertKeyMap

	return prompt
}

// SetWidth updates the width of the prompt component
func (p *PromptComponent) SetWidth(width int) {
	p.Width = width
	p.Style = p.Style.Width(width)
	p.TextArea.SetWidth(width - 2)
}

// SetHeight updates the height of the prompt component
// Height is constrained to MaxHeight (50% of screen)
func (p *PromptComponent) SetHeight(height int) {
	// Apply max height constraint if set
	if p.MaxHeight > 0 && height > p.MaxHeight {
		height = p.MaxHeight
	}
	p.Height = height
	p.Style = p.Style.Height(height)
	p.TextArea.SetHeight(height)
}

// SetScreenHeight updates the screen height and recalculates max height
func (p *PromptComponent) SetScreenHeight(screenHeight int) {
	p.ScreenHeight = screenHeight
	// Max height is 50% of screen height
	p.MaxHeight = screenHeight / 2
	// Re-apply height constraint
	if p.Height > p.MaxHeight {
		p.SetHeight(p.Height)
	}
}

// CalculateDesiredHeight returns the desired height based on content
func (p *PromptComponent) CalculateDesiredHeight() int {
	value := p.TextArea.Value()
	lines := strings.Count(value, "\n") + 1

	// Minimum height of 2 lines
	if lines < 2 {
		lines = 2
	}

	// Apply max height constraint
	if p.MaxHeight > 0 && lines > p.MaxHeight {
		return p.MaxHeight
	}

	return lines
}

// SetValue sets the text value of the prompt
func (p *PromptComponent) SetValue(value string) {
	p.TextArea.SetValue(value)
}

// Value returns the current text value
func (p PromptComponent) Value() string {
	return p.TextArea.Value()
}

// Focus gives focus to the prompt
func (p *PromptComponent) Focus() {
	p.TextArea.Focus()
}

// Blur removes focus from the prompt
func (p *PromptComponent) Blur() {
	p.TextArea.Blur()
}

// EnterViNormalMode switches to vi normal mode (for navigation)
func (p *PromptComponent) EnterViNormalMode() {
	p.ViCurrentMode = ViModeNormal
	p.viPendingOp = ""
	p.TextArea.KeyMap = p.viNormalKeyMap
	p.TextArea.Placeholder = "i for insert mode, : for commands, ↑↓ for history"
	p.updateViModeStyle()
}

// EnterViVisualMode switches to vi visual mode (for text selection)
func (p *PromptComponent) EnterViVisualMode() {
	p.ViCurrentMode = ViModeVisual
	p.viPendingOp = ""
	p.TextArea.KeyMap = p.viNormalKeyMap // Visual mode uses similar navigation
	p.TextArea.Placeholder = "Visual mode - select text"
	p.updateViModeStyle()
}

// EnterViInsertMode switches to vi insert mode
func (p *PromptComponent) EnterViInsertMode() {
	p.ViCurrentMode = ViModeInsert
	p.viPendingOp = ""
	p.TextArea.KeyMap = p.viInsertKeyMap
	p.TextArea.Placeholder = PlaceholderDefault
	p.updateViModeStyle()
}

// EnterViCommandLineMode switches to vi command-line mode
func (p *PromptComponent) EnterViCommandLineMode() {
	p.ViCurrentMode = ViModeCommandLine
	p.viPendingOp = ""
	// Use insert keymap for command-line editing
	p.TextArea.KeyMap = p.viInsertKeyMap
	p.TextArea.Placeholder = "Enter command..."
	p.updateViModeStyle()
}

// IsViNormalMode returns true if in vi normal mode
func (p PromptComponent) IsViNormalMode() bool {
	return p.ViCurrentMode == ViModeNormal
}

// IsViVisualMode returns true if in vi visual mode
func (p PromptComponent) IsViVisualMode() bool {
	return p.ViCurrentMode == ViModeVisual
}

// IsViInsertMode returns true if in vi insert mode
func (p PromptComponent) IsViInsertMode() bool {
	return p.ViCurrentMode == ViModeInsert
}

// IsViCommandLineMode returns true if in vi command-line mode
func (p PromptComponent) IsViCommandLineMode() bool {
	return p.ViCurrentMode == ViModeCommandLine
}

// EnterViLearningMode switches to vi learning mode
func (p *PromptComponent) EnterViLearningMode() {
	p.ViCurrentMode = ViModeLearning
	p.viPendingOp = ""
	// Use insert keymap for learning mode editing
	p.TextArea.KeyMap = p.viInsertKeyMap
	p.TextArea.Placeholder = "Enter learning note (will be appended to AGENTS.md)..."
	p.updateViModeStyle()
}

// IsViLearningMode returns true if in vi learning mode
func (p PromptComponent) IsViLearningMode() bool {
	return p.ViCurrentMode == ViModeLearning
}

// ViModeStatus returns current vi mode status for display components
func (p PromptComponent) ViModeStatus() (enabled bool, mode string, pending string) {
	return true, p.ViCurrentMode, p.viPendingOp
}

// updateViModeStyle updates the border color based on vi mode state
// Uses globalTheme.promptOnBorder when focused on prompt (INSERT/COMMAND/LEARNING)
// Uses globalTheme.promptOffBorder when focused away from prompt (NORMAL/VISUAL)
func (p *PromptComponent) updateViModeStyle() {
	switch p.ViCurrentMode {
	case ViModeInsert:
		// Insert mode: on border (focus on prompt input)
		p.Style = p.Style.BorderForeground(globalTheme.PromptOnBorder)
	case ViModeNormal:
		// Normal mode: off border (focus away from prompt, on content navigation)
		p.Style = p.Style.BorderForeground(globalTheme.PromptOffBorder)
	case ViModeVisual:
		// Visual mode: off border (focus away from prompt, on content selection)
		p.Style = p.Style.BorderForeground(globalTheme.PromptOffBorder)
	case ViModeCommandLine:
		// Command-line mode: on border (focus on command input)
		p.Style = p.Style.BorderForeground(globalTheme.PromptOnBorder)
	case ViModeLearning:
		// Learning mode: on border (focus on learning input)
		p.Style = p.Style.BorderForeground(globalTheme.PromptOnBorder)
	}
}

// handleViCommand processes vi commands like dd, dw, cc, cw, etc.
func (p *PromptComponent) handleViCommand(key string) (bool, tea.Cmd) {
	// Handle pending operations
	if p.viPendingOp != "" {
		command := p.viPendingOp + key
		p.viPendingOp = "" // Clear pending operation

		switch command {
		case "dd":
			// Delete current line
			return p.deleteCurrentLine()
		case "dw":
			// Delete word forward
			return p.deleteWordForward()
		case "db":
			// Delete word backward
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
			return true, cmd
		case "d$", "dD":
			// Delete to end of line
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlK})
			return true, cmd
		case "d0", "d^":
			// Delete to beginning of line
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
			return true, cmd
		case "cc":
			// Change current line (delete line and enter insert mode)
			handled, cmd := p.deleteCurrentLine()
			if handled {
				p.EnterViInsertMode()
			}
			return handled, cmd
		case "cw":
			// Change word forward (delete word and enter insert mode)
			handled, cmd := p.deleteWordForward()
			if handled {
				p.EnterViInsertMode()
			}
			return handled, cmd
		case "cb":
			// Change word backward (delete word and enter insert mode)
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlW})
			p.EnterViInsertMode()
			return true, cmd
		case "c$", "cD":
			// Change to end of line
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlK})
			p.EnterViInsertMode()
			return true, cmd
		case "c0", "c^":
			// Change to beginning of line
			var cmd tea.Cmd
			p.TextArea, cmd = p.TextArea.Update(tea.KeyMsg{Type: tea.KeyCtrlU})
			p.EnterViInsertMode()
			return true, cmd
		default:
			// Unknown command, ignore
			return false, nil
		}
	}

	// Check if this is the start of a compound command
	if key == "d" || key == "c" {
		p.viPendingOp = key
		return true, nil
	}

	return false, nil
}

// deleteCurrentLine deletes the current line
func (p *PromptComponent) deleteCurrentLine() (bool, tea.Cmd) {
	lines := strings.Split(p.TextArea.Value(), "\n")
	row := p.TextArea.Line()
	lineInfo := p.TextArea.LineInfo()
	col := lineInfo.StartColumn + lineInfo.ColumnOffset

	if row >= 0 && row < len(lines) {
		// Delete the current line
		newLines := append(lines[:row], lines[row+1:]...)
		newValue := strings.Join(newLines, "\n")
		p.TextArea.SetValue(newValue)

		// Determine target row after deletion
		targetRow := row
		if targetRow >= len(newLines) {
			targetRow = len(newLines) - 1
		}
		if targetRow < 0 {
			targetRow = 0
		}

		// Determine target column, clamped to line length
		targetCol := 0
		if targetRow >= 0 && targetRow < len(newLines) {
			if col < len(newLines[targetRow]) {
				targetCol = col
			} else {
				targetCol = len(newLines[targetRow])
			}
		}

		// Move cursor to target row
		p.TextArea.SetCursor(0)
		currentRow := p.TextArea.Line()
		for currentRow > targetRow {
			p.TextArea.CursorUp()
			currentRow = p.TextArea.Line()
		}
		for currentRow < targetRow {
			p.TextArea.CursorDown()
			currentRow = p.TextArea.Line()
		}

		// Set cursor to target column
		p.TextArea.SetCursor(targetCol)

		return true, nil
	}

	return false, nil
}

// deleteWordForward deletes from cursor to the end of the current word
func (p *PromptComponent) deleteWordForward() (bool, tea.Cmd) {
	value := p.TextArea.Value()
	if len(value) == 0 {
		return false, nil
	}

	// Get cursor position
	lineInfo := p.TextArea.LineInfo()
	row := p.TextArea.Line()
	col := lineInfo.ColumnOffset

	// Split into lines
	lines := strings.Split(value, "\n")
	if row < 0 || row >= len(lines) {
		return false, nil
	}

	currentLine := lines[row]
	if col >= len(currentLine) {
		// At end of line, delete the newline if there's a next line
		if row < len(lines)-1 {
			lines[row] = currentLine + lines[row+1]
			lines = append(lines[:row+1], lines[row+2:]...)
			newValue := strings.Join(lines, "\n")
			p.TextArea.SetValue(newValue)

			// Restore cursor position
			p.TextArea.SetCursor(0)
			currentRow := p.TextArea.Line()
			for currentRow < row {
				p.TextArea.CursorDown()
				currentRow = p.TextArea.Line()
			}
			p.TextArea.SetCursor(col)
			return true, nil
		}
		return false, nil
	}

	// Find the end of the current word
	endCol := col

	// Skip any leading whitespace
	for endCol < len(currentLine) && (currentLine[endCol] == ' ' || currentLine[endCol] == '\t') {
		endCol++
	}

	// Now find the end of the word
	if endCol < len(currentLine) {
		for endCol < len(currentLine) && currentLine[endCol] != ' ' && currentLine[endCol] != '\t' {
			endCol++
		}
	}

	// If we didn't move at all, just delete one character
	if endCol == col {
		endCol = col + 1
	}

	// Delete from col to endCol
	newLine := currentLine[:col] + currentLine[endCol:]
	lines[row] = newLine
	newValue := strings.Join(lines, "\n")
	p.TextArea.SetValue(newValue)

	// Restore cursor position
	p.TextArea.SetCursor(0)
	currentRow := p.TextArea.Line()
	for currentRow < row {
		p.TextArea.CursorDown()
		currentRow = p.TextArea.Line()
	}
	// Set cursor to the column position
	targetCol := col
	if targetCol > len(lines[row]) {
		targetCol = len(lines[row])
	}
	p.TextArea.SetCursor(targetCol)

	return true, nil
}

// Update handles messages for the prompt component
func (p PromptComponent) Update(msg interface{}) (PromptComponent, tea.Cmd) {
	var cmd tea.Cmd

	// In vi normal or visual mode, handle special vi commands
	if p.IsViNormalMode() || p.IsViVisualMode() {
		if keyMsg, ok := msg.(tea.KeyMsg); ok {
			keyStr := keyMsg.String()

			// Always allow arrow keys and navigation keys, regardless of mode
			navigationKeys := map[string]bool{
				"up": true, "down": true, "left": true, "right": true,
				"home": true, "end": true,
				"pgup": true, "pgdown": true,
			}

			// If it's a navigation key, pass it through immediately
			if navigationKeys[keyStr] {
				p.TextArea, cmd = p.TextArea.Update(msg)
				return p, cmd
			}

			// Handle vi commands (d, c, dd, dw, cc, cw, etc.)
			handled, viCmd := p.handleViCommand(keyStr)
			if handled {
				return p, viCmd
			}

			// Allow only specific navigation and command keys in normal/visual mode
			allowedKeys := map[string]bool{
				// Navigation (vi keys)
				"h": true, "j": true, "k": true, "l": true,
				"w": true, "b": true, "e": true,
				"0": true, "^": true, "$": true,
				"gg": true, "G": true,
				// Deletion (single character)
				"x": true, "X": true,
				// Capital commands
				"D": true, // Delete to end of line
				// Other
				"p": true,                                                        // paste
				":": true,                                                        // command mode (handled in tui.go)
				"i": true, "I": true, "a": true, "A": true, "o": true, "O": true, // insert mode triggers
				"v": true, "V": true, // visual mode triggers
			}

			// If it's not an allowed key and it's a single character (potential text input),
			// ignore it to prevent text insertion in normal/visual mode
			if !allowedKeys[keyStr] && len(keyStr) == 1 && p.viPendingOp == "" {
				// Ignore this key in normal/visual mode
				return p, nil
			}
		}
	}

	p.TextArea, cmd = p.TextArea.Update(msg)
	return p, cmd
}

// View renders the prompt component
func (p PromptComponent) View() string {
	content := p.TextArea.View()

	return p.Style.Render(wordwrap.String(content, p.Width))
}
