// Package shared holds helpers used by several scadalab packages.
//
// The testutil subpackage provides:
//
//   - a capturing slog handler with log assertions
//   - CSV fixtures shaped like historian exports, and a helper that writes
//     them into a test directory
//
// Example usage:
//
//	func TestLoad(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    path := testutil.WriteFixture(t, t.TempDir(), "line1.csv", testutil.LineOneCSV)
//	    ...
//	    testutil.AssertNoErrors(t, logs)
//	}
//
// Nothing here may import domain packages.
package shared
