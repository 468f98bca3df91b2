package runtime

import (
	"regexp"
	"slices"
	"strings"
)

var (
	esmStatic  = regexp.MustCompile(`(?m)^\s*(import\s+[\w*{'"]|export\s+(default|const|let|var|function|async|class|\{|\*))`)
	esmDynamic = regexp.MustCompile(`\bimport\s*\(`)
)

// IsModuleStyle reports whether JavaScript source uses ES module syntax
// (static import/export or dynamic import) and no CommonJS require.
func IsModuleStyle(code string) bool {
	if strings.Contains(code, "require(") {
		return false
	}
	return esmStatic.MatchString(code) || esmDynamic.MatchString(code)
}

var (
	pyImport     = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)`)
	pyFromImport = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\b`)
	pyImportlib  = regexp.MustCompile(`importlib\.import_module\(\s*['"]([\w.]+)['"]`)
)

// pythonDistributions maps import names to the distribution that provides them.
var pythonDistributions = map[string]string{
	"yaml":     "pyyaml",
	"PIL":      "pillow",
	"cv2":      "opencv-python",
	"sklearn":  "scikit-learn",
	"bs4":      "beautifulsoup4",
	"dateutil": "python-dateutil",
	"dotenv":   "python-dotenv",
}

// PythonDependencies returns the third-party distributions a Python snippet
// imports, in first-seen order. Standard library modules are skipped.
func PythonDependencies(code string) []string {
	type found struct {
		pos  int
		name string
	}
	var modules []found
	for _, m := range pyImport.FindAllStringSubmatchIndex(code, -1) {
		pos := m[2]
		for _, part := range strings.Split(code[m[2]:m[3]], ",") {
			name, _, _ := strings.Cut(strings.TrimSpace(part), " ")
			modules = append(modules, found{pos, name})
			pos += len(part) + 1
		}
	}
	for _, re := range []*regexp.Regexp{pyFromImport, pyImportlib} {
		for _, m := range re.FindAllStringSubmatchIndex(code, -1) {
			modules = append(modules, found{m[2], code[m[2]:m[3]]})
		}
	}
	slices.SortStableFunc(modules, func(a, b found) int { return a.pos - b.pos })

	seen := make(map[string]bool)
	var deps []string
	for _, mod := range modules {
		top, _, _ := strings.Cut(mod.name, ".")
		if top == "" || pythonStdlib[top] {
			continue
		}
		if dist, ok := pythonDistributions[top]; ok {
			top = dist
		}
		if seen[top] {
			continue
		}
		seen[top] = true
		deps = append(deps, top)
	}
	return deps
}

var pythonStdlib = func() map[string]bool {
	names := strings.Fields(`
__future__ abc argparse array ast asyncio atexit base64 bdb binascii bisect
builtins bz2 calendar cmath cmd code codecs codeop collections colorsys
compileall concurrent configparser contextlib contextvars copy copyreg cProfile
csv ctypes curses dataclasses datetime dbm decimal difflib dis doctest email
encodings ensurepip enum errno faulthandler fcntl filecmp fileinput fnmatch
fractions ftplib functools gc getopt getpass gettext glob graphlib grp gzip
hashlib heapq hmac html http idlelib imaplib importlib inspect io ipaddress
itertools json keyword linecache locale logging lzma mailbox marshal math
mimetypes mmap modulefinder multiprocessing netrc numbers operator optparse os
pathlib pdb pickle pickletools pkgutil platform plistlib poplib posix pprint
profile pstats pty pwd py_compile pyclbr pydoc queue quopri random re readline
reprlib resource rlcompleter runpy sched secrets select selectors shelve shlex
shutil signal site smtplib socket socketserver sqlite3 ssl stat statistics
string stringprep struct subprocess symtable sys sysconfig syslog tabnanny
tarfile tempfile termios textwrap threading time timeit tkinter token tokenize
tomllib trace traceback tracemalloc tty turtle types typing unicodedata
unittest urllib uuid venv warnings wave weakref webbrowser winreg winsound
wsgiref xml xmlrpc zipapp zipfile zipimport zlib zoneinfo`)
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}()
