package project

import "testing"

func TestUnitConversions(t *testing.T) {
	if MM2POS(10) != 10000000 {
		t.Fatalf("MM2POS(10) = %d", MM2POS(10))
	}
	if SI2POS(0.01) != 10000000 {
		t.Fatalf("SI2POS(0.01) = %d", SI2POS(0.01))
	}
	if POS2MM(2500000) != 2.5 {
		t.Fatalf("POS2MM(2500000) = %f", POS2MM(2500000))
	}
	if POS2SI(5000000) != 0.005 {
		t.Fatalf("POS2SI(5000000) = %f", POS2SI(5000000))
	}
}

func TestResolveAbsoluteAndRelative(t *testing.T) {
	pos := NewPositionState(3000)
	pos.Current = Target{X: 100, Y: 200, Z: 300, E: 400}

	cmd := gcode(1).with(X_AXIS, 1000).with(E_AXIS, -50)
	target := pos.Resolve(cmd)
	if target.X != 1000 || target.Y != 200 || target.Z != 300 || target.E != -50 {
		t.Fatalf("absolute resolve: %+v", target)
	}
	if target.F != 3000 {
		t.Fatalf("expected standing feed 3000, got %d", target.F)
	}

	pos.Relative = true
	target = pos.Resolve(gcode(1).with(X_AXIS, 1000).with(Z_AXIS, -300).withF(1200))
	if target.X != 1100 || target.Y != 200 || target.Z != 0 || target.E != 400 {
		t.Fatalf("relative resolve: %+v", target)
	}
	if target.F != 1200 || pos.Feed != 1200 {
		t.Fatalf("feed not updated: target %d standing %d", target.F, pos.Feed)
	}
	target = pos.Resolve(gcode(1))
	if target.F != 1200 {
		t.Fatalf("expected reused feed 1200, got %d", target.F)
	}
}

func TestSetPositionToCurrentIsNoop(t *testing.T) {
	pos := NewPositionState(3000)
	pos.Current = Target{X: 10, Y: -20, Z: 30, E: 40}
	pos.Home = Target{X: 1, Y: 2, Z: 3, E: 4}
	req := pos.Current
	seen := [NUM_AXES]bool{true, true, true, true}
	rebase, _ := pos.SetPosition(&req, seen, false)
	if rebase {
		t.Fatalf("unexpected extruder rebase")
	}
	if pos.Current != (Target{X: 10, Y: -20, Z: 30, E: 40}) || pos.Home != (Target{X: 1, Y: 2, Z: 3, E: 4}) {
		t.Fatalf("state changed: current %+v home %+v", pos.Current, pos.Home)
	}
}

func TestSetPositionKeepsMachineFrame(t *testing.T) {
	for axis := X_AXIS; axis <= E_AXIS; axis++ {
		pos := NewPositionState(3000)
		pos.Current = Target{X: 1000, Y: 2000, Z: 3000, E: 4000}
		pos.Home = Target{X: 7, Y: 8, Z: 9, E: 10}
		before := pos.Machine(axis)
		req := Target{X: 55, Y: 66, Z: 77, E: 88}
		var seen [NUM_AXES]bool
		seen[axis] = true
		pos.SetPosition(&req, seen, false)
		if *pos.Current.Axis(axis) != *req.Axis(axis) {
			t.Fatalf("%s: current %d, want %d", axis, *pos.Current.Axis(axis), *req.Axis(axis))
		}
		if pos.Machine(axis) != before {
			t.Fatalf("%s: machine frame moved from %d to %d", axis, before, pos.Machine(axis))
		}
	}
}

func TestSetPositionWithoutAxesRollsIntoHome(t *testing.T) {
	pos := NewPositionState(3000)
	pos.Current = Target{X: 10, Y: 20, Z: 30, E: 40}
	pos.Home = Target{X: 1, Y: 1, Z: 1, E: 1}
	pos.SetPosition(&Target{}, [NUM_AXES]bool{}, false)
	if pos.Current != (Target{}) {
		t.Fatalf("current not zeroed: %+v", pos.Current)
	}
	if pos.Home != (Target{X: 11, Y: 21, Z: 31, E: 41}) {
		t.Fatalf("unexpected home: %+v", pos.Home)
	}
}

func TestSetPositionExtruderZeroRebases(t *testing.T) {
	pos := NewPositionState(3000)
	pos.Current.E = 5000
	pos.Home.E = 700
	rebase, origin := pos.SetPosition(&Target{}, [NUM_AXES]bool{E_AXIS: true}, false)
	if !rebase || origin != 5700 {
		t.Fatalf("expected rebase to 5700, got %v %d", rebase, origin)
	}
	if pos.Home.E != 0 || pos.Current.E != 0 {
		t.Fatalf("expected E cleared, home %d current %d", pos.Home.E, pos.Current.E)
	}

	// always-relative extruder uses the normal offset algebra
	pos.Current.E = 5000
	pos.Home.E = 700
	rebase, _ = pos.SetPosition(&Target{}, [NUM_AXES]bool{E_AXIS: true}, true)
	if rebase {
		t.Fatalf("unexpected rebase with always-relative extruder")
	}
	if pos.Home.E != 5700 || pos.Current.E != 0 {
		t.Fatalf("home %d current %d", pos.Home.E, pos.Current.E)
	}
}
