package odbc

import (
	"errors"
	"testing"
)

// =============================================================================
// Command Property Tests (command.go)
// =============================================================================

func TestNewCommand_Defaults(t *testing.T) {
	cmd := NewCommand("", nil)

	if cmd.Text() != "" {
		t.Errorf("Text() = %q, want empty", cmd.Text())
	}
	if cmd.Timeout() != DefaultCommandTimeout {
		t.Errorf("Timeout() = %d, want %d", cmd.Timeout(), DefaultCommandTimeout)
	}
	if cmd.Type() != CommandText {
		t.Errorf("Type() = %v, want Text", cmd.Type())
	}
	if cmd.UpdatedRowSource() != UpdateBoth {
		t.Errorf("UpdatedRowSource() = %v, want Both", cmd.UpdatedRowSource())
	}
	if !cmd.DesignTimeVisible() {
		t.Error("DesignTimeVisible() = false, want true")
	}
	if cmd.Connection() != nil || cmd.Transaction() != nil {
		t.Error("expected no connection and no transaction")
	}
	if cmd.Parameters().Len() != 0 {
		t.Errorf("Parameters().Len() = %d, want 0", cmd.Parameters().Len())
	}
	if cmd.Prepared() || cmd.Disposed() {
		t.Error("new command must be neither prepared nor disposed")
	}
}

func TestCommand_SetTimeout(t *testing.T) {
	tests := []struct {
		name    string
		seconds int
		want    int
		wantErr bool
	}{
		{"positive", 60, 60, false},
		{"zero means no limit", 0, 0, false},
		{"negative rejected", -1, DefaultCommandTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCommand("", nil)
			err := cmd.SetTimeout(tt.seconds)
			if tt.wantErr {
				var ae *ArgumentError
				if !errors.As(err, &ae) {
					t.Fatalf("expected ArgumentError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Timeout() != tt.want {
				t.Errorf("Timeout() = %d, want %d", cmd.Timeout(), tt.want)
			}
		})
	}
}

func TestCommand_ResetTimeout(t *testing.T) {
	cmd := NewCommand("", nil)
	if err := cmd.SetTimeout(5); err != nil {
		t.Fatal(err)
	}
	cmd.ResetTimeout()
	if cmd.Timeout() != DefaultCommandTimeout {
		t.Errorf("Timeout() = %d, want %d", cmd.Timeout(), DefaultCommandTimeout)
	}
}

func TestCommand_SetType(t *testing.T) {
	tests := []struct {
		value   CommandType
		wantErr bool
	}{
		{CommandText, false},
		{CommandStoredProcedure, false},
		{CommandTableDirect, false},
		{CommandType(-1), true},
		{CommandType(3), true},
	}

	for _, tt := range tests {
		t.Run(tt.value.String(), func(t *testing.T) {
			cmd := NewCommand("", nil)
			err := cmd.SetType(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetType(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			want := tt.value
			if tt.wantErr {
				want = CommandText
			}
			if cmd.Type() != want {
				t.Errorf("Type() = %v, want %v", cmd.Type(), want)
			}
		})
	}
}

func TestCommand_SetUpdatedRowSource(t *testing.T) {
	tests := []struct {
		value   UpdateRowSource
		wantErr bool
	}{
		{UpdateNone, false},
		{UpdateOutputParameters, false},
		{UpdateFirstReturnedRecord, false},
		{UpdateBoth, false},
		{UpdateRowSource(4), true},
		{UpdateRowSource(-2), true},
	}

	for _, tt := range tests {
		t.Run(tt.value.String(), func(t *testing.T) {
			cmd := NewCommand("", nil)
			err := cmd.SetUpdatedRowSource(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetUpdatedRowSource(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.wantErr && cmd.UpdatedRowSource() != UpdateBoth {
				t.Errorf("rejected value changed the command: %v", cmd.UpdatedRowSource())
			}
		})
	}
}

func TestCommand_SetTextClearsPrepared(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := conn.CreateCommand()
	cmd.SetText("SELECT a FROM t WHERE id = ?")

	if err := cmd.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !cmd.Prepared() {
		t.Fatal("expected prepared")
	}
	b.resetCalls()

	cmd.SetText("SELECT b FROM t")
	if cmd.Prepared() {
		t.Error("SetText must clear prepared")
	}
	if n := b.totalCalls(); n != 0 {
		t.Errorf("SetText issued %d native calls", n)
	}
	if cmd.stmt.current() == 0 {
		t.Error("SetText must not free the handle")
	}
}

func TestCommand_Clone(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)

	cmd := conn.CreateCommand()
	cmd.SetText("SELECT ?")
	cmd.SetTimeout(7)
	cmd.SetType(CommandStoredProcedure)
	cmd.SetDesignTimeVisible(false)
	cmd.Parameters().Add("p1", []byte{1, 2, 3})
	if err := cmd.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	clone := cmd.Clone()

	if clone.Text() != cmd.Text() || clone.Timeout() != 7 || clone.Type() != CommandStoredProcedure {
		t.Errorf("clone lost properties: %q %d %v", clone.Text(), clone.Timeout(), clone.Type())
	}
	if clone.DesignTimeVisible() {
		t.Error("clone lost DesignTimeVisible")
	}
	if clone.Connection() != conn {
		t.Error("clone should share the connection")
	}
	if clone.Prepared() || clone.stmt.current() != 0 {
		t.Error("clone must not hold a handle or be prepared")
	}

	if clone.Parameters().At(0) == cmd.Parameters().At(0) {
		t.Fatal("parameters must be copied, not shared")
	}
	clone.Parameters().At(0).Value.([]byte)[0] = 9
	if cmd.Parameters().At(0).Value.([]byte)[0] != 1 {
		t.Error("mutating the clone's value changed the original")
	}
	clone.Parameters().Add("p2", 1)
	if cmd.Parameters().Len() != 1 {
		t.Error("adding to the clone changed the original")
	}

	clone.SetText("SELECT 2")
	if cmd.Text() != "SELECT ?" || !cmd.Prepared() {
		t.Error("changing the clone changed the original")
	}
}

func TestCommand_DisposeIsIdempotent(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := conn.CreateCommand()
	cmd.SetText("SELECT 1")
	cmd.Parameters().Add("p", 1)
	if err := cmd.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if err := cmd.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := cmd.Dispose(); err != nil {
		t.Fatalf("second dispose: %v", err)
	}

	if n := b.count("SQLFreeHandle"); n != 1 {
		t.Errorf("SQLFreeHandle calls = %d, want 1", n)
	}
	if !cmd.Disposed() || cmd.Prepared() {
		t.Error("expected disposed and unprepared")
	}
	if cmd.Text() != "" || cmd.Connection() != nil || cmd.Parameters().Len() != 0 {
		t.Error("dispose should clear text, connection and parameters")
	}
	if n := conn.linkCount(); n != 0 {
		t.Errorf("linkCount() = %d, want 0", n)
	}
}

func TestCommand_DisposeWithoutHandle(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := NewCommand("SELECT 1", conn)
	b.resetCalls()

	if err := cmd.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if n := b.totalCalls(); n != 0 {
		t.Errorf("dispose without a handle issued %d native calls", n)
	}
}

func TestCommand_UnlinkKeepsRegistry(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := NewCommand("SELECT 1", conn)
	if err := cmd.Prepare(); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if err := cmd.Unlink(); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if cmd.stmt.current() != 0 {
		t.Error("unlink should free the handle")
	}
	if cmd.Prepared() {
		t.Error("unlink should clear prepared")
	}
	// the registry is the caller's to clear
	if n := conn.linkCount(); n != 1 {
		t.Errorf("linkCount() = %d, want 1", n)
	}
}

func TestCommand_UnlinkSkippedWhenDisposed(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := NewCommand("SELECT 1", conn)
	cmd.Dispose()
	b.resetCalls()

	if err := cmd.Unlink(); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if n := b.totalCalls(); n != 0 {
		t.Errorf("unlink of a disposed command issued %d native calls", n)
	}
}

func TestCommand_ReuseAfterDispose(t *testing.T) {
	b := newFakeBridge()
	conn := openTestConnection(t, b)
	cmd := NewCommand("SELECT 1", conn)
	cmd.Dispose()

	cmd.SetConnection(conn)
	cmd.SetText("DELETE FROM t")
	b.rowCount = 3

	n, err := cmd.ExecuteNonQuery()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	if cmd.Disposed() {
		t.Error("a new allocation should clear disposed")
	}
}

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		value fmtStringer
		want  string
	}{
		{CommandText, "Text"},
		{CommandStoredProcedure, "StoredProcedure"},
		{CommandType(9), "CommandType(9)"},
		{UpdateNone, "None"},
		{UpdateFirstReturnedRecord, "FirstReturnedRecord"},
		{UpdateRowSource(7), "UpdateRowSource(7)"},
		{StateOpen, "Open"},
		{StateClosed, "Closed"},
	}

	for _, tt := range tests {
		if got := tt.value.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

type fmtStringer interface{ String() string }
