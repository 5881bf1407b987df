package session

import (
	"testing"

	"district-api/internal/sources"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	return New("s1", 1, 1, [4]float64{-125, 24, -66, 50})
}

func unit(id int64) sources.Unit {
	return sources.Unit{ID: id, GeolevelID: 1}
}

func selectUnits(t *testing.T, s *Session, ids ...int64) {
	t.Helper()
	gen, err := s.BeginSelect()
	require.NoError(t, err)
	us := make([]sources.Unit, len(ids))
	for i, id := range ids {
		us[i] = unit(id)
	}
	_, applied := s.ApplySelection(gen, us)
	require.True(t, applied)
}

func TestInitialState(t *testing.T) {
	s := newTestSession()
	st := s.Snapshot()
	assert.Equal(t, ToolNavigate, st.ActiveTool)
	assert.Empty(t, st.Units)
	assert.False(t, st.Busy)
	assert.False(t, st.Committed)
}

func TestSelectionAccumulatesAndDedupes(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	selectUnits(t, s, 1, 2)
	selectUnits(t, s, 2, 3)
	st := s.Snapshot()
	require.Len(t, st.Units, 3)
	assert.Equal(t, int64(1), st.Units[0].ID)
	assert.Equal(t, int64(3), st.Units[2].ID)
}

func TestActivateNonSelectingToolClearsBuffer(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolBox))
	selectUnits(t, s, 1, 2)
	require.NoError(t, s.ActivateTool(ToolNavigate))
	assert.Empty(t, s.Snapshot().Units)
}

func TestReactivateSameToolClearsBuffer(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPolygon))
	selectUnits(t, s, 5)
	require.NoError(t, s.ActivateTool(ToolPolygon))
	assert.Empty(t, s.Snapshot().Units)
}

func TestActivateAssignPreservesBufferAndRecordsPrev(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolBox))
	selectUnits(t, s, 1, 2)
	require.NoError(t, s.ActivateTool(ToolAssign))
	st := s.Snapshot()
	assert.Equal(t, ToolAssign, st.ActiveTool)
	assert.Len(t, st.Units, 2)
}

func TestStaleSelectionDiscarded(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	gen1, err := s.BeginSelect()
	require.NoError(t, err)
	// 第二次查询令第一次的代失效
	gen2, err := s.BeginSelect()
	require.NoError(t, err)
	_, applied := s.ApplySelection(gen1, []sources.Unit{unit(1)})
	assert.False(t, applied)
	assert.Empty(t, s.Snapshot().Units)
	added, applied := s.ApplySelection(gen2, []sources.Unit{unit(2)})
	assert.True(t, applied)
	assert.Equal(t, 1, added)
}

func TestToolSwitchInvalidatesInFlightSelection(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolBox))
	gen, err := s.BeginSelect()
	require.NoError(t, err)
	require.NoError(t, s.ActivateTool(ToolNavigate))
	_, applied := s.ApplySelection(gen, []sources.Unit{unit(9)})
	assert.False(t, applied)
	assert.Empty(t, s.Snapshot().Units)
}

func TestBeginSelectRequiresSelectingTool(t *testing.T) {
	s := newTestSession()
	_, err := s.BeginSelect()
	assert.ErrorIs(t, err, ErrNotSelecting)
	require.NoError(t, s.ActivateTool(ToolAssign))
	_, err = s.BeginSelect()
	assert.ErrorIs(t, err, ErrNotSelecting)
}

func TestDeselectRemovesUnits(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	selectUnits(t, s, 1, 2, 3)
	removed, err := s.Deselect([]int64{2, 99})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	st := s.Snapshot()
	require.Len(t, st.Units, 2)
	assert.Equal(t, int64(1), st.Units[0].ID)
	assert.Equal(t, int64(3), st.Units[1].ID)
}

func TestAssignSuccessRestoresToolThenLoadEndClears(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolBox))
	selectUnits(t, s, 1, 2)
	require.NoError(t, s.ActivateTool(ToolAssign))

	units, err := s.BeginAssign()
	require.NoError(t, err)
	assert.Len(t, units, 2)
	assert.True(t, s.Snapshot().Busy)

	s.FinishAssign(true)
	st := s.Snapshot()
	assert.False(t, st.Busy)
	assert.True(t, st.Committed)
	assert.Equal(t, ToolBox, st.ActiveTool)
	// 缓冲区在图层重载完成前保持“已提交”高亮
	assert.Len(t, st.Units, 2)

	s.LoadEnd()
	st = s.Snapshot()
	assert.False(t, st.Committed)
	assert.Empty(t, st.Units)
	assert.Equal(t, ToolBox, st.ActiveTool)
}

func TestAssignFailureLeavesStateIntact(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	selectUnits(t, s, 7)
	require.NoError(t, s.ActivateTool(ToolAssign))

	_, err := s.BeginAssign()
	require.NoError(t, err)
	s.FinishAssign(false)

	st := s.Snapshot()
	assert.False(t, st.Busy)
	assert.False(t, st.Committed)
	assert.Equal(t, ToolAssign, st.ActiveTool)
	assert.Len(t, st.Units, 1)

	// 失败后 LoadEnd 不得清空未提交的选择
	s.LoadEnd()
	assert.Len(t, s.Snapshot().Units, 1)
}

func TestBeginAssignGuards(t *testing.T) {
	s := newTestSession()
	_, err := s.BeginAssign()
	assert.ErrorIs(t, err, ErrAssignToolInactive)

	require.NoError(t, s.ActivateTool(ToolAssign))
	_, err = s.BeginAssign()
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestBusyRejectsConcurrentOperations(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	selectUnits(t, s, 1)
	require.NoError(t, s.ActivateTool(ToolAssign))
	_, err := s.BeginAssign()
	require.NoError(t, err)

	_, err = s.BeginAssign()
	assert.ErrorIs(t, err, ErrAssignInFlight)
	assert.ErrorIs(t, s.ActivateTool(ToolNavigate), ErrAssignInFlight)
	_, err = s.Deselect([]int64{1})
	assert.ErrorIs(t, err, ErrAssignInFlight)
}

func TestGeolevelChangeClearsSelection(t *testing.T) {
	s := newTestSession()
	require.NoError(t, s.ActivateTool(ToolPoint))
	selectUnits(t, s, 1, 2)
	s.SetGeolevel(2)
	assert.Empty(t, s.Snapshot().Units)
	assert.Equal(t, int64(2), s.GeolevelID())
	// 同层级重设为空操作
	gen, err := s.BeginSelect()
	require.NoError(t, err)
	s.SetGeolevel(2)
	_, applied := s.ApplySelection(gen, []sources.Unit{unit(3)})
	assert.True(t, applied)
}

func TestParseTool(t *testing.T) {
	for _, name := range []string{"navigate", "point", "box", "polygon", "assign"} {
		tool, ok := ParseTool(name)
		assert.True(t, ok)
		assert.Equal(t, Tool(name), tool)
	}
	_, ok := ParseTool("lasso")
	assert.False(t, ok)
}
