package sz

// Magic is the 6-byte signature identifying valid 7z archives.
var Magic = [6]byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// SignatureHeaderSize is the fixed size of the signature header:
// magic (6) + version (2) + start header CRC (4) + start header (20).
const SignatureHeaderSize = 32

// Property IDs of the tag-delimited header stream. Each structural
// section opens with one of these and closes with IDEnd.
const (
	IDEnd                   = 0x00
	IDHeader                = 0x01
	IDArchiveProperties     = 0x02
	IDAdditionalStreamsInfo = 0x03
	IDMainStreamsInfo       = 0x04
	IDFilesInfo             = 0x05
	IDPackInfo              = 0x06
	IDUnpackInfo            = 0x07
	IDSubStreamsInfo        = 0x08
	IDSize                  = 0x09
	IDCRC                   = 0x0A
	IDFolder                = 0x0B
	IDCodersUnpackSize      = 0x0C
	IDNumUnpackStream       = 0x0D
	IDEmptyStream           = 0x0E
	IDEmptyFile             = 0x0F
	IDAnti                  = 0x10
	IDName                  = 0x11
	IDCTime                 = 0x12
	IDATime                 = 0x13
	IDMTime                 = 0x14
	IDWinAttributes         = 0x15
	IDComment               = 0x16
	IDEncodedHeader         = 0x17
	IDStartPos              = 0x18
	IDDummy                 = 0x19
)

// Coder flag byte layout inside a folder definition.
const (
	CoderIDSizeMask = 0x0F
	CoderIsComplex  = 0x10
	CoderHasAttrs   = 0x20
)

// Method IDs of the coders this package knows about. The registry in
// internal/codec decides which of these are actually decodable.
var (
	MethodCopy    = MethodID([]byte{0x00})
	MethodDelta   = MethodID([]byte{0x03})
	MethodBCJX86  = MethodID([]byte{0x04})
	MethodLZMA2   = MethodID([]byte{0x21})
	MethodLZMA    = MethodID([]byte{0x03, 0x01, 0x01})
	MethodPPC     = MethodID([]byte{0x03, 0x03, 0x02, 0x05})
	MethodARM     = MethodID([]byte{0x03, 0x03, 0x05, 0x01})
	MethodARMT    = MethodID([]byte{0x03, 0x03, 0x07, 0x01})
	MethodSPARC   = MethodID([]byte{0x03, 0x03, 0x08, 0x05})
	MethodBCJ2    = MethodID([]byte{0x03, 0x03, 0x01, 0x1B})
	MethodDeflate = MethodID([]byte{0x04, 0x01, 0x08})
	MethodBZip2   = MethodID([]byte{0x04, 0x02, 0x02})
	MethodZstd    = MethodID([]byte{0x04, 0xF7, 0x11, 0x01})
	MethodAES256  = MethodID([]byte{0x06, 0xF1, 0x07, 0x01})
)

// Windows file attribute bits carried in FileEntry.Attributes.
const (
	AttrReadOnly  = 0x01
	AttrDirectory = 0x10
	// AttrUnixExtension marks entries whose high 16 attribute bits carry
	// a POSIX mode (p7zip convention).
	AttrUnixExtension = 0x8000
)
