package bytecode

// Opcodes of the JVM instruction set.
const (
	Nop             byte = 0x00
	AconstNull      byte = 0x01
	IconstM1        byte = 0x02
	Iconst0         byte = 0x03
	Iconst1         byte = 0x04
	Iconst2         byte = 0x05
	Iconst3         byte = 0x06
	Iconst4         byte = 0x07
	Iconst5         byte = 0x08
	Lconst0         byte = 0x09
	Lconst1         byte = 0x0a
	Fconst0         byte = 0x0b
	Fconst1         byte = 0x0c
	Fconst2         byte = 0x0d
	Dconst0         byte = 0x0e
	Dconst1         byte = 0x0f
	Bipush          byte = 0x10
	Sipush          byte = 0x11
	Ldc             byte = 0x12
	LdcW            byte = 0x13
	Ldc2W           byte = 0x14
	Iload           byte = 0x15
	Lload           byte = 0x16
	Fload           byte = 0x17
	Dload           byte = 0x18
	Aload           byte = 0x19
	Iload0          byte = 0x1a
	Iload1          byte = 0x1b
	Iload2          byte = 0x1c
	Iload3          byte = 0x1d
	Lload0          byte = 0x1e
	Lload1          byte = 0x1f
	Lload2          byte = 0x20
	Lload3          byte = 0x21
	Fload0          byte = 0x22
	Fload1          byte = 0x23
	Fload2          byte = 0x24
	Fload3          byte = 0x25
	Dload0          byte = 0x26
	Dload1          byte = 0x27
	Dload2          byte = 0x28
	Dload3          byte = 0x29
	Aload0          byte = 0x2a
	Aload1          byte = 0x2b
	Aload2          byte = 0x2c
	Aload3          byte = 0x2d
	Iaload          byte = 0x2e
	Laload          byte = 0x2f
	Faload          byte = 0x30
	Daload          byte = 0x31
	Aaload          byte = 0x32
	Baload          byte = 0x33
	Caload          byte = 0x34
	Saload          byte = 0x35
	Istore          byte = 0x36
	Lstore          byte = 0x37
	Fstore          byte = 0x38
	Dstore          byte = 0x39
	Astore          byte = 0x3a
	Istore0         byte = 0x3b
	Istore1         byte = 0x3c
	Istore2         byte = 0x3d
	Istore3         byte = 0x3e
	Lstore0         byte = 0x3f
	Lstore1         byte = 0x40
	Lstore2         byte = 0x41
	Lstore3         byte = 0x42
	Fstore0         byte = 0x43
	Fstore1         byte = 0x44
	Fstore2         byte = 0x45
	Fstore3         byte = 0x46
	Dstore0         byte = 0x47
	Dstore1         byte = 0x48
	Dstore2         byte = 0x49
	Dstore3         byte = 0x4a
	Astore0         byte = 0x4b
	Astore1         byte = 0x4c
	Astore2         byte = 0x4d
	Astore3         byte = 0x4e
	Iastore         byte = 0x4f
	Lastore         byte = 0x50
	Fastore         byte = 0x51
	Dastore         byte = 0x52
	Aastore         byte = 0x53
	Bastore         byte = 0x54
	Castore         byte = 0x55
	Sastore         byte = 0x56
	Pop             byte = 0x57
	Pop2            byte = 0x58
	Dup             byte = 0x59
	DupX1           byte = 0x5a
	DupX2           byte = 0x5b
	Dup2            byte = 0x5c
	Dup2X1          byte = 0x5d
	Dup2X2          byte = 0x5e
	Swap            byte = 0x5f
	Iadd            byte = 0x60
	Ladd            byte = 0x61
	Fadd            byte = 0x62
	Dadd            byte = 0x63
	Isub            byte = 0x64
	Lsub            byte = 0x65
	Fsub            byte = 0x66
	Dsub            byte = 0x67
	Imul            byte = 0x68
	Lmul            byte = 0x69
	Fmul            byte = 0x6a
	Dmul            byte = 0x6b
	Idiv            byte = 0x6c
	Ldiv            byte = 0x6d
	Fdiv            byte = 0x6e
	Ddiv            byte = 0x6f
	Irem            byte = 0x70
	Lrem            byte = 0x71
	Frem            byte = 0x72
	Drem            byte = 0x73
	Ineg            byte = 0x74
	Lneg            byte = 0x75
	Fneg            byte = 0x76
	Dneg            byte = 0x77
	Ishl            byte = 0x78
	Lshl            byte = 0x79
	Ishr            byte = 0x7a
	Lshr            byte = 0x7b
	Iushr           byte = 0x7c
	Lushr           byte = 0x7d
	Iand            byte = 0x7e
	Land            byte = 0x7f
	Ior             byte = 0x80
	Lor             byte = 0x81
	Ixor            byte = 0x82
	Lxor            byte = 0x83
	Iinc            byte = 0x84
	I2l             byte = 0x85
	I2f             byte = 0x86
	I2d             byte = 0x87
	L2i             byte = 0x88
	L2f             byte = 0x89
	L2d             byte = 0x8a
	F2i             byte = 0x8b
	F2l             byte = 0x8c
	F2d             byte = 0x8d
	D2i             byte = 0x8e
	D2l             byte = 0x8f
	D2f             byte = 0x90
	I2b             byte = 0x91
	I2c             byte = 0x92
	I2s             byte = 0x93
	Lcmp            byte = 0x94
	Fcmpl           byte = 0x95
	Fcmpg           byte = 0x96
	Dcmpl           byte = 0x97
	Dcmpg           byte = 0x98
	Ifeq            byte = 0x99
	Ifne            byte = 0x9a
	Iflt            byte = 0x9b
	Ifge            byte = 0x9c
	Ifgt            byte = 0x9d
	Ifle            byte = 0x9e
	IfIcmpeq        byte = 0x9f
	IfIcmpne        byte = 0xa0
	IfIcmplt        byte = 0xa1
	IfIcmpge        byte = 0xa2
	IfIcmpgt        byte = 0xa3
	IfIcmple        byte = 0xa4
	IfAcmpeq        byte = 0xa5
	IfAcmpne        byte = 0xa6
	Goto            byte = 0xa7
	Jsr             byte = 0xa8
	Ret             byte = 0xa9
	Tableswitch     byte = 0xaa
	Lookupswitch    byte = 0xab
	Ireturn         byte = 0xac
	Lreturn         byte = 0xad
	Freturn         byte = 0xae
	Dreturn         byte = 0xaf
	Areturn         byte = 0xb0
	Return          byte = 0xb1
	Getstatic       byte = 0xb2
	Putstatic       byte = 0xb3
	Getfield        byte = 0xb4
	Putfield        byte = 0xb5
	Invokevirtual   byte = 0xb6
	Invokespecial   byte = 0xb7
	Invokestatic    byte = 0xb8
	Invokeinterface byte = 0xb9
	Invokedynamic   byte = 0xba
	New             byte = 0xbb
	Newarray        byte = 0xbc
	Anewarray       byte = 0xbd
	Arraylength     byte = 0xbe
	Athrow          byte = 0xbf
	Checkcast       byte = 0xc0
	Instanceof      byte = 0xc1
	Monitorenter    byte = 0xc2
	Monitorexit     byte = 0xc3
	Wide            byte = 0xc4
	Multianewarray  byte = 0xc5
	Ifnull          byte = 0xc6
	Ifnonnull       byte = 0xc7
	GotoW           byte = 0xc8
	JsrW            byte = 0xc9
)

type opInfo struct {
	name string
	// length in bytes including the opcode; 0 for variable-length forms
	length int
}

var ops = [256]opInfo{
	Nop:             {"nop", 1},
	AconstNull:      {"aconst_null", 1},
	IconstM1:        {"iconst_m1", 1},
	Iconst0:         {"iconst_0", 1},
	Iconst1:         {"iconst_1", 1},
	Iconst2:         {"iconst_2", 1},
	Iconst3:         {"iconst_3", 1},
	Iconst4:         {"iconst_4", 1},
	Iconst5:         {"iconst_5", 1},
	Lconst0:         {"lconst_0", 1},
	Lconst1:         {"lconst_1", 1},
	Fconst0:         {"fconst_0", 1},
	Fconst1:         {"fconst_1", 1},
	Fconst2:         {"fconst_2", 1},
	Dconst0:         {"dconst_0", 1},
	Dconst1:         {"dconst_1", 1},
	Bipush:          {"bipush", 2},
	Sipush:          {"sipush", 3},
	Ldc:             {"ldc", 2},
	LdcW:            {"ldc_w", 3},
	Ldc2W:           {"ldc2_w", 3},
	Iload:           {"iload", 2},
	Lload:           {"lload", 2},
	Fload:           {"fload", 2},
	Dload:           {"dload", 2},
	Aload:           {"aload", 2},
	Iload0:          {"iload_0", 1},
	Iload1:          {"iload_1", 1},
	Iload2:          {"iload_2", 1},
	Iload3:          {"iload_3", 1},
	Lload0:          {"lload_0", 1},
	Lload1:          {"lload_1", 1},
	Lload2:          {"lload_2", 1},
	Lload3:          {"lload_3", 1},
	Fload0:          {"fload_0", 1},
	Fload1:          {"fload_1", 1},
	Fload2:          {"fload_2", 1},
	Fload3:          {"fload_3", 1},
	Dload0:          {"dload_0", 1},
	Dload1:          {"dload_1", 1},
	Dload2:          {"dload_2", 1},
	Dload3:          {"dload_3", 1},
	Aload0:          {"aload_0", 1},
	Aload1:          {"aload_1", 1},
	Aload2:          {"aload_2", 1},
	Aload3:          {"aload_3", 1},
	Iaload:          {"iaload", 1},
	Laload:          {"laload", 1},
	Faload:          {"faload", 1},
	Daload:          {"daload", 1},
	Aaload:          {"aaload", 1},
	Baload:          {"baload", 1},
	Caload:          {"caload", 1},
	Saload:          {"saload", 1},
	Istore:          {"istore", 2},
	Lstore:          {"lstore", 2},
	Fstore:          {"fstore", 2},
	Dstore:          {"dstore", 2},
	Astore:          {"astore", 2},
	Istore0:         {"istore_0", 1},
	Istore1:         {"istore_1", 1},
	Istore2:         {"istore_2", 1},
	Istore3:         {"istore_3", 1},
	Lstore0:         {"lstore_0", 1},
	Lstore1:         {"lstore_1", 1},
	Lstore2:         {"lstore_2", 1},
	Lstore3:         {"lstore_3", 1},
	Fstore0:         {"fstore_0", 1},
	Fstore1:         {"fstore_1", 1},
	Fstore2:         {"fstore_2", 1},
	Fstore3:         {"fstore_3", 1},
	Dstore0:         {"dstore_0", 1},
	Dstore1:         {"dstore_1", 1},
	Dstore2:         {"dstore_2", 1},
	Dstore3:         {"dstore_3", 1},
	Astore0:         {"astore_0", 1},
	Astore1:         {"astore_1", 1},
	Astore2:         {"astore_2", 1},
	Astore3:         {"astore_3", 1},
	Iastore:         {"iastore", 1},
	Lastore:         {"lastore", 1},
	Fastore:         {"fastore", 1},
	Dastore:         {"dastore", 1},
	Aastore:         {"aastore", 1},
	Bastore:         {"bastore", 1},
	Castore:         {"castore", 1},
	Sastore:         {"sastore", 1},
	Pop:             {"pop", 1},
	Pop2:            {"pop2", 1},
	Dup:             {"dup", 1},
	DupX1:           {"dup_x1", 1},
	DupX2:           {"dup_x2", 1},
	Dup2:            {"dup2", 1},
	Dup2X1:          {"dup2_x1", 1},
	Dup2X2:          {"dup2_x2", 1},
	Swap:            {"swap", 1},
	Iadd:            {"iadd", 1},
	Ladd:            {"ladd", 1},
	Fadd:            {"fadd", 1},
	Dadd:            {"dadd", 1},
	Isub:            {"isub", 1},
	Lsub:            {"lsub", 1},
	Fsub:            {"fsub", 1},
	Dsub:            {"dsub", 1},
	Imul:            {"imul", 1},
	Lmul:            {"lmul", 1},
	Fmul:            {"fmul", 1},
	Dmul:            {"dmul", 1},
	Idiv:            {"idiv", 1},
	Ldiv:            {"ldiv", 1},
	Fdiv:            {"fdiv", 1},
	Ddiv:            {"ddiv", 1},
	Irem:            {"irem", 1},
	Lrem:            {"lrem", 1},
	Frem:            {"frem", 1},
	Drem:            {"drem", 1},
	Ineg:            {"ineg", 1},
	Lneg:            {"lneg", 1},
	Fneg:            {"fneg", 1},
	Dneg:            {"dneg", 1},
	Ishl:            {"ishl", 1},
	Lshl:            {"lshl", 1},
	Ishr:            {"ishr", 1},
	Lshr:            {"lshr", 1},
	Iushr:           {"iushr", 1},
	Lushr:           {"lushr", 1},
	Iand:            {"iand", 1},
	Land:            {"land", 1},
	Ior:             {"ior", 1},
	Lor:             {"lor", 1},
	Ixor:            {"ixor", 1},
	Lxor:            {"lxor", 1},
	Iinc:            {"iinc", 3},
	I2l:             {"i2l", 1},
	I2f:             {"i2f", 1},
	I2d:             {"i2d", 1},
	L2i:             {"l2i", 1},
	L2f:             {"l2f", 1},
	L2d:             {"l2d", 1},
	F2i:             {"f2i", 1},
	F2l:             {"f2l", 1},
	F2d:             {"f2d", 1},
	D2i:             {"d2i", 1},
	D2l:             {"d2l", 1},
	D2f:             {"d2f", 1},
	I2b:             {"i2b", 1},
	I2c:             {"i2c", 1},
	I2s:             {"i2s", 1},
	Lcmp:            {"lcmp", 1},
	Fcmpl:           {"fcmpl", 1},
	Fcmpg:           {"fcmpg", 1},
	Dcmpl:           {"dcmpl", 1},
	Dcmpg:           {"dcmpg", 1},
	Ifeq:            {"ifeq", 3},
	Ifne:            {"ifne", 3},
	Iflt:            {"iflt", 3},
	Ifge:            {"ifge", 3},
	Ifgt:            {"ifgt", 3},
	Ifle:            {"ifle", 3},
	IfIcmpeq:        {"if_icmpeq", 3},
	IfIcmpne:        {"if_icmpne", 3},
	IfIcmplt:        {"if_icmplt", 3},
	IfIcmpge:        {"if_icmpge", 3},
	IfIcmpgt:        {"if_icmpgt", 3},
	IfIcmple:        {"if_icmple", 3},
	IfAcmpeq:        {"if_acmpeq", 3},
	IfAcmpne:        {"if_acmpne", 3},
	Goto:            {"goto", 3},
	Jsr:             {"jsr", 3},
	Ret:             {"ret", 2},
	Tableswitch:     {"tableswitch", 0},
	Lookupswitch:    {"lookupswitch", 0},
	Ireturn:         {"ireturn", 1},
	Lreturn:         {"lreturn", 1},
	Freturn:         {"freturn", 1},
	Dreturn:         {"dreturn", 1},
	Areturn:         {"areturn", 1},
	Return:          {"return", 1},
	Getstatic:       {"getstatic", 3},
	Putstatic:       {"putstatic", 3},
	Getfield:        {"getfield", 3},
	Putfield:        {"putfield", 3},
	Invokevirtual:   {"invokevirtual", 3},
	Invokespecial:   {"invokespecial", 3},
	Invokestatic:    {"invokestatic", 3},
	Invokeinterface: {"invokeinterface", 5},
	Invokedynamic:   {"invokedynamic", 5},
	New:             {"new", 3},
	Newarray:        {"newarray", 2},
	Anewarray:       {"anewarray", 3},
	Arraylength:     {"arraylength", 1},
	Athrow:          {"athrow", 1},
	Checkcast:       {"checkcast", 3},
	Instanceof:      {"instanceof", 3},
	Monitorenter:    {"monitorenter", 1},
	Monitorexit:     {"monitorexit", 1},
	Wide:            {"wide", 0},
	Multianewarray:  {"multianewarray", 4},
	Ifnull:          {"ifnull", 3},
	Ifnonnull:       {"ifnonnull", 3},
	GotoW:           {"goto_w", 5},
	JsrW:            {"jsr_w", 5},
}

// Name returns the mnemonic of op, or "" for an undefined opcode.
func Name(op byte) string {
	return ops[op].name
}

// Valid reports whether op is a defined opcode.
func Valid(op byte) bool {
	return ops[op].name != ""
}
