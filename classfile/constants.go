package classfile

// Magic is the class file magic number.
const Magic uint32 = 0xCAFEBABE

// Class file major versions that change the required metadata.
const (
	MajorJava6 uint16 = 50 // StackMapTable becomes meaningful
	MajorJava7 uint16 = 51 // type-checking verifier is mandatory
)

// Limits imposed by the class file format.
const (
	MaxCodeLength = 65535
	MaxPoolSize   = 65535
	MaxArrayDim   = 255
)

// Constant pool tags.
const (
	TagUtf8               byte = 1
	TagInteger            byte = 3
	TagFloat              byte = 4
	TagLong               byte = 5
	TagDouble             byte = 6
	TagClass              byte = 7
	TagString             byte = 8
	TagFieldref           byte = 9
	TagMethodref          byte = 10
	TagInterfaceMethodref byte = 11
	TagNameAndType        byte = 12
	TagMethodHandle       byte = 15
	TagMethodType         byte = 16
	TagDynamic            byte = 17
	TagInvokeDynamic      byte = 18
	TagModule             byte = 19
	TagPackage            byte = 20
)

// Array element type codes for newarray.
const (
	TBoolean byte = 4
	TChar    byte = 5
	TFloat   byte = 6
	TDouble  byte = 7
	TByte    byte = 8
	TShort   byte = 9
	TInt     byte = 10
	TLong    byte = 11
)

// Well-known attribute and member names.
const (
	AttrCode                            = "Code"
	AttrConstantValue                   = "ConstantValue"
	AttrStackMapTable                   = "StackMapTable"
	AttrLineNumberTable                 = "LineNumberTable"
	AttrLocalVariableTable              = "LocalVariableTable"
	AttrLocalVariableTypeTable          = "LocalVariableTypeTable"
	AttrBootstrapMethods                = "BootstrapMethods"
	AttrRuntimeVisibleTypeAnnotations   = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations = "RuntimeInvisibleTypeAnnotations"

	StaticInit = "<clinit>"
	Init       = "<init>"
)

// AccessFlags is the access_flags bit set of a class, field or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSynchronized AccessFlags = 0x0020
	AccSuper        AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
	AccModule       AccessFlags = 0x8000
)

func (a AccessFlags) IsStatic() bool    { return a&AccStatic != 0 }
func (a AccessFlags) IsFinal() bool     { return a&AccFinal != 0 }
func (a AccessFlags) IsInterface() bool { return a&AccInterface != 0 }
func (a AccessFlags) IsAbstract() bool  { return a&AccAbstract != 0 }
func (a AccessFlags) IsNative() bool    { return a&AccNative != 0 }

// Opcodes of the JVM instruction set.
const (
	OpNop             byte = 0x00
	OpAconstNull      byte = 0x01
	OpIconstM1        byte = 0x02
	OpIconst0         byte = 0x03
	OpIconst1         byte = 0x04
	OpIconst2         byte = 0x05
	OpIconst3         byte = 0x06
	OpIconst4         byte = 0x07
	OpIconst5         byte = 0x08
	OpLconst0         byte = 0x09
	OpLconst1         byte = 0x0a
	OpFconst0         byte = 0x0b
	OpFconst1         byte = 0x0c
	OpFconst2         byte = 0x0d
	OpDconst0         byte = 0x0e
	OpDconst1         byte = 0x0f
	OpBipush          byte = 0x10
	OpSipush          byte = 0x11
	OpLdc             byte = 0x12
	OpLdcW            byte = 0x13
	OpLdc2W           byte = 0x14
	OpIload           byte = 0x15
	OpLload           byte = 0x16
	OpFload           byte = 0x17
	OpDload           byte = 0x18
	OpAload           byte = 0x19
	OpIload0          byte = 0x1a
	OpLload0          byte = 0x1e
	OpFload0          byte = 0x22
	OpDload0          byte = 0x26
	OpAload0          byte = 0x2a
	OpAload3          byte = 0x2d
	OpIaload          byte = 0x2e
	OpLaload          byte = 0x2f
	OpFaload          byte = 0x30
	OpDaload          byte = 0x31
	OpAaload          byte = 0x32
	OpBaload          byte = 0x33
	OpCaload          byte = 0x34
	OpSaload          byte = 0x35
	OpIstore          byte = 0x36
	OpLstore          byte = 0x37
	OpFstore          byte = 0x38
	OpDstore          byte = 0x39
	OpAstore          byte = 0x3a
	OpIstore0         byte = 0x3b
	OpLstore0         byte = 0x3f
	OpFstore0         byte = 0x43
	OpDstore0         byte = 0x47
	OpAstore0         byte = 0x4b
	OpAstore3         byte = 0x4e
	OpIastore         byte = 0x4f
	OpLastore         byte = 0x50
	OpFastore         byte = 0x51
	OpDastore         byte = 0x52
	OpAastore         byte = 0x53
	OpBastore         byte = 0x54
	OpCastore         byte = 0x55
	OpSastore         byte = 0x56
	OpPop             byte = 0x57
	OpPop2            byte = 0x58
	OpDup             byte = 0x59
	OpDupX1           byte = 0x5a
	OpDupX2           byte = 0x5b
	OpDup2            byte = 0x5c
	OpDup2X1          byte = 0x5d
	OpDup2X2          byte = 0x5e
	OpSwap            byte = 0x5f
	OpIadd            byte = 0x60
	OpLadd            byte = 0x61
	OpDrem            byte = 0x73
	OpIneg            byte = 0x74
	OpLneg            byte = 0x75
	OpFneg            byte = 0x76
	OpDneg            byte = 0x77
	OpIshl            byte = 0x78
	OpLshl            byte = 0x79
	OpIshr            byte = 0x7a
	OpLshr            byte = 0x7b
	OpIushr           byte = 0x7c
	OpLushr           byte = 0x7d
	OpIand            byte = 0x7e
	OpLand            byte = 0x7f
	OpIor             byte = 0x80
	OpLor             byte = 0x81
	OpIxor            byte = 0x82
	OpLxor            byte = 0x83
	OpIinc            byte = 0x84
	OpI2l             byte = 0x85
	OpI2f             byte = 0x86
	OpI2d             byte = 0x87
	OpL2i             byte = 0x88
	OpL2f             byte = 0x89
	OpL2d             byte = 0x8a
	OpF2i             byte = 0x8b
	OpF2l             byte = 0x8c
	OpF2d             byte = 0x8d
	OpD2i             byte = 0x8e
	OpD2l             byte = 0x8f
	OpD2f             byte = 0x90
	OpI2b             byte = 0x91
	OpI2c             byte = 0x92
	OpI2s             byte = 0x93
	OpLcmp            byte = 0x94
	OpFcmpl           byte = 0x95
	OpFcmpg           byte = 0x96
	OpDcmpl           byte = 0x97
	OpDcmpg           byte = 0x98
	OpIfeq            byte = 0x99
	OpIfne            byte = 0x9a
	OpIflt            byte = 0x9b
	OpIfge            byte = 0x9c
	OpIfgt            byte = 0x9d
	OpIfle            byte = 0x9e
	OpIfIcmpeq        byte = 0x9f
	OpIfIcmpne        byte = 0xa0
	OpIfIcmplt        byte = 0xa1
	OpIfIcmpge        byte = 0xa2
	OpIfIcmpgt        byte = 0xa3
	OpIfIcmple        byte = 0xa4
	OpIfAcmpeq        byte = 0xa5
	OpIfAcmpne        byte = 0xa6
	OpGoto            byte = 0xa7
	OpJsr             byte = 0xa8
	OpRet             byte = 0xa9
	OpTableswitch     byte = 0xaa
	OpLookupswitch    byte = 0xab
	OpIreturn         byte = 0xac
	OpLreturn         byte = 0xad
	OpFreturn         byte = 0xae
	OpDreturn         byte = 0xaf
	OpAreturn         byte = 0xb0
	OpReturn          byte = 0xb1
	OpGetstatic       byte = 0xb2
	OpPutstatic       byte = 0xb3
	OpGetfield        byte = 0xb4
	OpPutfield        byte = 0xb5
	OpInvokevirtual   byte = 0xb6
	OpInvokespecial   byte = 0xb7
	OpInvokestatic    byte = 0xb8
	OpInvokeinterface byte = 0xb9
	OpInvokedynamic   byte = 0xba
	OpNew             byte = 0xbb
	OpNewarray        byte = 0xbc
	OpAnewarray       byte = 0xbd
	OpArraylength     byte = 0xbe
	OpAthrow          byte = 0xbf
	OpCheckcast       byte = 0xc0
	OpInstanceof      byte = 0xc1
	OpMonitorenter    byte = 0xc2
	OpMonitorexit     byte = 0xc3
	OpWide            byte = 0xc4
	OpMultianewarray  byte = 0xc5
	OpIfnull          byte = 0xc6
	OpIfnonnull       byte = 0xc7
	OpGotoW           byte = 0xc8
	OpJsrW            byte = 0xc9
)
