/*
Package normalizer coerces loosely typed template documents into the canonical
domain.Template shape.

Input typically comes from a generator that gets field names, types and nesting
only roughly right. The normalizer accepts mappings or lists for roles, slots and
states, legacy field spellings (fieldType, phase, participants,
coordinationPattern) and any key casing. It never fails: every gap is filled
with a conservative default and reported as a Recommendation.

Identifiers are slugs. Display names such as "Primary Requester!" become
primary_requester, and every reference to a role, slot or state is rewritten
through a lookup table of the labels seen during the pass. References that
cannot be resolved are kept verbatim so that validation can report them.
*/
package normalizer
