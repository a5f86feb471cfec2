package config

import (
	"fmt"
	"strconv"
	"strings"
)

// RenderDefaultTOML renders a commented config.toml holding every default.
func RenderDefaultTOML() string {
	var lines []string
	lines = append(lines, "# asst configuration (TOML)", "")
	top, sections, order := groupOptions(GetConfigOptions(), nil)
	for _, o := range top {
		lines = appendOption(lines, o)
	}
	for _, section := range order {
		lines = append(lines, "["+section+"]")
		for _, o := range sections[section] {
			lines = appendOption(lines, o)
		}
	}
	return strings.Join(lines, "\n")
}

// UpdateTOML adds defaults missing from existing and comments out keys that are no
// longer part of the schema. Missing keys of tables already in the file are inserted
// into those tables. It reports whether anything changed.
func UpdateTOML(existing string) (string, bool) {
	known := make(map[string]bool)
	for _, o := range GetConfigOptions() {
		known[o.Key] = true
	}

	seen := make(map[string]bool)
	ends := make(map[string]int)
	firstHeader := -1
	section := ""
	changed := false
	var out []string
	for _, line := range strings.Split(existing, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "#") {
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(trim, "[") && strings.HasSuffix(trim, "]") {
			section = strings.TrimSpace(trim[1 : len(trim)-1])
			if firstHeader < 0 {
				firstHeader = len(out)
			}
			out = append(out, line)
			ends[section] = len(out)
			continue
		}
		if key, ok := parseTOMLKey(trim); ok {
			if section != "" {
				key = section + "." + key
			}
			seen[key] = true
			if !known[key] {
				indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
				out = append(out, indent+"# OUTDATED: option removed from config schema", indent+"# "+trim)
				changed = true
				continue
			}
		}
		out = append(out, line)
		ends[section] = len(out)
	}

	top, sections, order := groupOptions(GetConfigOptions(), seen)
	inserts := make(map[int][]string)
	if len(top) > 0 {
		pos, ok := ends[""]
		if !ok {
			pos = firstHeader
			if pos < 0 {
				pos = len(out)
			}
		}
		for _, o := range top {
			inserts[pos] = appendOption(inserts[pos], o)
		}
	}
	var tail []string
	for _, s := range order {
		pos, ok := ends[s]
		if !ok {
			tail = append(tail, "["+s+"]")
			for _, o := range sections[s] {
				tail = appendOption(tail, o)
			}
			continue
		}
		for _, o := range sections[s] {
			inserts[pos] = appendOption(inserts[pos], o)
		}
	}
	if len(inserts) == 0 && len(tail) == 0 {
		return strings.Join(out, "\n"), changed
	}

	merged := make([]string, 0, len(out)+len(tail))
	for i := 0; i <= len(out); i++ {
		merged = append(merged, inserts[i]...)
		if i < len(out) {
			merged = append(merged, out[i])
		}
	}
	if len(tail) > 0 {
		merged = append(merged, "", "# Added by config update")
		merged = append(merged, tail...)
	}
	return strings.Join(merged, "\n"), true
}

// groupOptions splits dotted keys into TOML sections, skipping keys in skip.
func groupOptions(opts []ConfigOption, skip map[string]bool) ([]ConfigOption, map[string][]ConfigOption, []string) {
	var top []ConfigOption
	sections := make(map[string][]ConfigOption)
	var order []string
	for _, o := range opts {
		if skip[o.Key] {
			continue
		}
		section, key, ok := strings.Cut(o.Key, ".")
		if !ok {
			top = append(top, o)
			continue
		}
		if _, exists := sections[section]; !exists {
			order = append(order, section)
		}
		sections[section] = append(sections[section], ConfigOption{Key: key, Default: o.Default, Comment: o.Comment})
	}
	return top, sections, order
}

func appendOption(lines []string, o ConfigOption) []string {
	if o.Comment != "" {
		lines = append(lines, "# "+o.Comment)
	}
	return append(lines, o.Key+" = "+tomlValue(o.Default), "")
}

func tomlValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseTOMLKey(line string) (string, bool) {
	key, _, ok := strings.Cut(line, "=")
	if !ok {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "\"") || strings.HasPrefix(key, "'") {
		return "", false
	}
	return key, true
}
