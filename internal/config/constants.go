package config

// Application constants
const (
	AppName = "scadalab"

	// Supported loader extensions
	ExtCSV     = ".csv"
	ExtTSV     = ".tsv"
	ExtXLSX    = ".xlsx"
	ExtXLS     = ".xls" // legacy BIFF workbooks, rejected with a hint
	ExtArrow   = ".arrow"
	ExtIPC     = ".ipc"
	ExtFeather = ".feather"

	// MaxInputFileSize bounds what the loader accepts (512MB)
	MaxInputFileSize = 512 * 1024 * 1024

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// SupportedExtensions lists the file extensions the loader understands
var SupportedExtensions = []string{ExtCSV, ExtTSV, ExtXLSX, ExtArrow, ExtIPC, ExtFeather}
