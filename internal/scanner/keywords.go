package scanner

import (
	"fmt"
	"strings"
)

var registers = buildRegisters()

func buildRegisters() map[string]bool {
	regs := map[string]bool{}
	add := func(names ...string) {
		for _, n := range names {
			regs[n] = true
		}
	}
	add("al", "cl", "dl", "bl", "ah", "ch", "dh", "bh", "spl", "bpl", "sil", "dil")
	add("ax", "cx", "dx", "bx", "sp", "bp", "si", "di")
	add("eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi")
	add("rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi")
	add("cs", "ds", "es", "fs", "gs", "ss")
	add("rip", "eip", "ip", "st")
	for i := 8; i <= 15; i++ {
		add(fmt.Sprintf("r%d", i), fmt.Sprintf("r%db", i), fmt.Sprintf("r%dl", i),
			fmt.Sprintf("r%dw", i), fmt.Sprintf("r%dd", i))
	}
	for i := 0; i <= 7; i++ {
		add(fmt.Sprintf("st%d", i), fmt.Sprintf("mm%d", i), fmt.Sprintf("k%d", i), fmt.Sprintf("dr%d", i))
	}
	for i := 0; i <= 8; i++ {
		add(fmt.Sprintf("cr%d", i))
	}
	for i := 0; i <= 3; i++ {
		add(fmt.Sprintf("bnd%d", i))
	}
	for i := 0; i <= 31; i++ {
		add(fmt.Sprintf("xmm%d", i), fmt.Sprintf("ymm%d", i), fmt.Sprintf("zmm%d", i))
	}
	return regs
}

// IsRegister reports whether name is an x86 register, ignoring case and an
// AT&T '%' prefix.
func IsRegister(name string) bool {
	return registers[strings.ToLower(strings.TrimPrefix(name, "%"))]
}

// operators are operand keywords that are never labels.
var operators = toSet(
	"ptr", "offset", "short", "near", "far", "byte", "word", "dword", "qword", "tbyte",
	"oword", "xmmword", "ymmword", "zmmword", "fword", "real4", "real8", "real10",
	"addr", "sizeof", "lengthof", "length", "size", "type", "seg", "low", "high",
	"lowword", "highword", "mod", "shl", "shr", "and", "or", "xor", "not", "eq", "ne",
	"lt", "le", "gt", "ge", "dup", "rel", "abs", "strict", "flat", "this", "imagerel",
	"sectionrel", "wrt", "near32", "far32", "near16", "far16", "proc", "@f", "@b", "$", "$$",
	"?", ".",
)

var instructionPrefixes = toSet(
	"rep", "repe", "repz", "repne", "repnz", "lock", "bnd", "notrack", "xacquire", "xrelease",
)

var jumpMnemonics = toSet(
	"call", "callq", "calll", "callw", "loop", "loope", "loopz", "loopne", "loopnz",
	"xbegin", "jmpq", "jmpl",
)

func isJump(mnemonic string) bool {
	m := strings.ToLower(mnemonic)
	if jumpMnemonics[m] {
		return true
	}
	return strings.HasPrefix(m, "j") && len(m) <= 6
}

// mnemonics are common x86/x64 instructions other than jumps. NASM needs
// them to tell "start mov eax, 1" (label, then instruction) from an
// instruction with label operands.
var mnemonics = toSet(
	"aaa", "aad", "aam", "aas", "adc", "adcx", "add", "addpd", "addps", "addsd", "addss",
	"adox", "and", "andn", "andpd", "andps", "bsf", "bsr", "bswap", "bt", "btc", "btr",
	"bts", "cbw", "cdq", "cdqe", "clc", "cld", "cli", "cmc", "cmova", "cmovae", "cmovb",
	"cmovbe", "cmove", "cmovg", "cmovge", "cmovl", "cmovle", "cmovne", "cmovns", "cmovs",
	"cmovz", "cmovnz", "cmp", "cmppd", "cmpps", "cmpsb", "cmpsd", "cmpsq", "cmpsw",
	"cmpxchg", "cmpxchg8b", "cmpxchg16b", "comisd", "comiss", "cpuid", "cqo", "cvtsi2sd",
	"cvtsi2ss", "cvttsd2si", "cvttss2si", "cwd", "cwde", "daa", "das", "dec", "div",
	"divpd", "divps", "divsd", "divss", "emms", "enter", "f2xm1", "fabs", "fadd", "faddp",
	"fchs", "fcom", "fcomp", "fdiv", "fdivp", "fild", "fist", "fistp", "fld", "fld1",
	"fldz", "fmul", "fmulp", "fninit", "fstp", "fst", "fsub", "fsubp", "fxch", "hlt",
	"idiv", "imul", "in", "inc", "insb", "insd", "insw", "int", "int3", "into", "invd",
	"invlpg", "iret", "iretd", "iretq", "lahf", "lar", "lddqu", "ldmxcsr", "lds", "lea",
	"leave", "les", "lfence", "lfs", "lgdt", "lgs", "lidt", "lldt", "lmsw", "lodsb",
	"lodsd", "lodsq", "lodsw", "lsl", "lss", "ltr", "lzcnt", "maxsd", "maxss", "mfence",
	"minsd", "minss", "mov", "movabs", "movapd", "movaps", "movd", "movdqa", "movdqu",
	"movq", "movsb", "movsd", "movsq", "movss", "movsw", "movsx", "movsxd", "movupd",
	"movups", "movzx", "mul", "mulpd", "mulps", "mulsd", "mulss", "neg", "nop", "not",
	"or", "orpd", "orps", "out", "outsb", "outsd", "outsw", "pause", "pop", "popa",
	"popad", "popcnt", "popf", "popfd", "popfq", "por", "prefetchnta", "pshufd", "pslld",
	"psrld", "push", "pusha", "pushad", "pushf", "pushfd", "pushfq", "pxor", "rcl", "rcr",
	"rdmsr", "rdpmc", "rdrand", "rdtsc", "rdtscp", "ret", "retf", "retn", "rol", "ror",
	"sahf", "sal", "sar", "sbb", "scasb", "scasd", "scasq", "scasw", "seta", "setae",
	"setb", "setbe", "sete", "setg", "setge", "setl", "setle", "setne", "setnz", "setz",
	"sfence", "sgdt", "shl", "shld", "shr", "shrd", "sidt", "sldt", "smsw", "sqrtsd",
	"sqrtss", "stc", "std", "sti", "stmxcsr", "stosb", "stosd", "stosq", "stosw", "str",
	"sub", "subpd", "subps", "subsd", "subss", "swapgs", "syscall", "sysenter", "sysexit",
	"sysret", "test", "tzcnt", "ucomisd", "ucomiss", "ud2", "verr", "verw", "wait",
	"wbinvd", "wrmsr", "xadd", "xchg", "xgetbv", "xlat", "xlatb", "xor", "xorpd", "xorps",
)

// IsMnemonic reports whether name is a known instruction mnemonic.
func IsMnemonic(name string) bool {
	return isJump(name) || mnemonics[strings.ToLower(name)]
}

// directive describes how a dialect keyword affects scanning.
type directive struct {
	// defines is set when a leading identifier followed by this directive
	// is a label definition ("msg db 'x'", "foo PROC").
	defines bool
	// operands is set when identifiers after the directive are label usages.
	operands bool
}

var masmDirectives = map[string]directive{
	"proc": {defines: true}, "endp": {defines: false}, "proto": {defines: true},
	"label": {defines: true}, "equ": {defines: true, operands: true},
	"textequ": {defines: true, operands: true}, "=": {defines: true, operands: true},
	"db": {defines: true, operands: true}, "dw": {defines: true, operands: true},
	"dd": {defines: true, operands: true}, "df": {defines: true, operands: true},
	"dq": {defines: true, operands: true}, "dt": {defines: true, operands: true},
	"byte": {defines: true, operands: true}, "sbyte": {defines: true, operands: true},
	"word": {defines: true, operands: true}, "sword": {defines: true, operands: true},
	"dword": {defines: true, operands: true}, "sdword": {defines: true, operands: true},
	"fword": {defines: true, operands: true}, "qword": {defines: true, operands: true},
	"tbyte": {defines: true, operands: true}, "real4": {defines: true, operands: true},
	"real8": {defines: true, operands: true}, "real10": {defines: true, operands: true},
	"struct": {defines: true}, "struc": {defines: true}, "union": {defines: true},
	"record": {defines: true}, "macro": {defines: true}, "segment": {defines: true},
	"typedef": {defines: true}, "ends": {}, "endm": {},
	"extern": {}, "extrn": {}, "externdef": {}, "public": {operands: true},
	"include": {}, "includelib": {}, "end": {operands: true}, "invoke": {operands: true},
	"option": {}, "assume": {}, "title": {}, "subtitle": {}, "page": {}, "align": {},
	"even": {}, "org": {operands: true}, "local": {}, "uses": {},
	"if": {operands: true}, "else": {}, "elseif": {operands: true}, "endif": {},
	"ifdef": {operands: true}, "ifndef": {operands: true}, "rept": {}, "irp": {},
	"irpc": {}, "exitm": {}, "purge": {}, "comment": {}, "while": {}, "endw": {},
	"for": {}, "forc": {}, ".model": {}, ".code": {}, ".data": {}, ".data?": {},
	".const": {}, ".stack": {}, ".386": {}, ".486": {}, ".586": {}, ".686": {},
	".686p": {}, ".xmm": {}, ".mmx": {}, ".x64": {}, ".radix": {},
}

var nasmDirectives = map[string]directive{
	"db": {defines: true, operands: true}, "dw": {defines: true, operands: true},
	"dd": {defines: true, operands: true}, "dq": {defines: true, operands: true},
	"dt": {defines: true, operands: true}, "do": {defines: true, operands: true},
	"dy": {defines: true, operands: true}, "dz": {defines: true, operands: true},
	"resb": {defines: true, operands: true}, "resw": {defines: true, operands: true},
	"resd": {defines: true, operands: true}, "resq": {defines: true, operands: true},
	"rest": {defines: true, operands: true}, "reso": {defines: true, operands: true},
	"resy": {defines: true, operands: true}, "resz": {defines: true, operands: true},
	"equ": {defines: true, operands: true}, "times": {defines: true, operands: true},
	"incbin": {defines: true},
	"extern": {}, "global": {operands: true}, "common": {operands: true},
	"static": {operands: true}, "section": {}, "segment": {}, "bits": {}, "use16": {},
	"use32": {}, "use64": {}, "default": {}, "cpu": {}, "org": {operands: true},
	"align": {}, "alignb": {}, "struc": {}, "endstruc": {}, "istruc": {operands: true},
	"iend": {}, "at": {operands: true}, "absolute": {operands: true},
}

var gasOperandDirectives = toSet(
	".long", ".quad", ".word", ".short", ".byte", ".int", ".2byte", ".4byte", ".8byte",
	".globl", ".global", ".weak", ".hidden", ".local", ".type", ".size", ".org",
	".dc.a", ".dc.l", ".dc.w", ".dc.b", ".dc.q", ".if", ".ifdef", ".ifndef",
)

var gasDefiningDirectives = toSet(".set", ".equ", ".equiv", ".eqv")

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var callingConventions = toSet("c", "stdcall", "syscall", "pascal", "fortran", "basic", "vectorcall", "fastcall")
